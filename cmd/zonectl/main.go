package main

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guillermomolina/nova-solaris/internal/cli"
)

var (
	server  = "http://localhost:18000/"
	jsonout = false
)

// actions the daemon accepts on an instance
var instanceActions = map[string]bool{
	"reboot":   true,
	"poweron":  true,
	"poweroff": true,
	"suspend":  true,
	"resume":   true,
	"migrate":  true,
}

func help(cmd *cobra.Command, _ []string) {
	_ = cmd.Help()
}

func getInstances(c *cli.Client) []cli.JMap {
	ret := c.GetMany("instances", "instances")
	instances := make([]cli.JMap, len(ret))
	for i := range ret {
		instances[i] = ret[i]
	}
	return instances
}

func getInstance(c *cli.Client, id string) cli.JMap {
	return c.Get("instance", "instances/"+id)
}

func createInstance(c *cli.Client, spec string) cli.JMap {
	return c.Post("instance", "instances", spec, http.StatusAccepted)
}

func modifyInstance(c *cli.Client, id string, spec string) cli.JMap {
	return c.Patch("instance", "instances/"+id, spec)
}

func deleteInstance(c *cli.Client, id string) cli.JMap {
	return c.Del("instance", "instances/"+id, http.StatusAccepted)
}

func instanceAction(c *cli.Client, id, action, body string) cli.JMap {
	return c.Post("instance", "instances/"+id+"/actions/"+action, body, http.StatusAccepted)
}

func getJob(c *cli.Client, id string) cli.JMap {
	return c.Get("job", "jobs/"+id)
}

func list(cmd *cobra.Command, ids []string) {
	c := cli.NewClient(server)
	instances := []cli.JMap{}

	if len(ids) == 0 {
		instances = getInstances(c)
		cli.SortByID(instances)
	} else {
		for _, id := range ids {
			cli.AssertID(id)
			instances = append(instances, getInstance(c, id))
		}
	}

	for _, instance := range instances {
		instance.Print(jsonout)
	}
}

func create(cmd *cobra.Command, specs []string) {
	c := cli.NewClient(server)
	for _, spec := range specs {
		cli.AssertSpec(spec)
		instance := createInstance(c, spec)
		instance.Print(jsonout)
	}
}

func modify(cmd *cobra.Command, args []string) {
	c := cli.NewClient(server)
	if len(args)%2 != 0 {
		log.WithField("num", len(args)).Fatal("expected an even number of args")
	}
	for i := 0; i < len(args); i += 2 {
		id := args[i]
		cli.AssertID(id)
		spec := args[i+1]
		cli.AssertSpec(spec)

		instance := modifyInstance(c, id, spec)
		instance.Print(jsonout)
	}
}

func del(cmd *cobra.Command, ids []string) {
	c := cli.NewClient(server)
	for _, id := range ids {
		cli.AssertID(id)
		instance := deleteInstance(c, id)
		instance.Print(jsonout)
	}
}

func action(cmd *cobra.Command, args []string) {
	if len(args) < 2 {
		log.Fatal("expected an action and at least one id")
	}
	act := args[0]
	if !instanceActions[act] {
		log.WithField("action", act).Fatal("invalid action")
	}

	c := cli.NewClient(server)

	if act == "migrate" {
		if len(args) != 3 {
			log.Fatal("migrate expects an id and a destination host")
		}
		id := args[1]
		cli.AssertID(id)
		body, err := json.Marshal(map[string]string{"dest": args[2]})
		if err != nil {
			log.WithField("error", err).Fatal("failed to build migrate request")
		}
		instance := instanceAction(c, id, act, string(body))
		instance.Print(jsonout)
		return
	}

	for _, id := range args[1:] {
		cli.AssertID(id)
		instance := instanceAction(c, id, act, "")
		instance.Print(jsonout)
	}
}

func job(cmd *cobra.Command, ids []string) {
	c := cli.NewClient(server)
	for _, id := range ids {
		cli.AssertID(id)
		j := getJob(c, id)
		j.Print(jsonout)
	}
}

func main() {
	root := &cobra.Command{
		Use:   "zonectl",
		Short: "zonectl is the cli interface to nova-compute-solaris",
		Run:   help,
	}
	root.PersistentFlags().BoolVarP(&jsonout, "jsonout", "j", jsonout, "output in json")
	root.PersistentFlags().StringVarP(&server, "server", "s", server, "server address to connect to")

	cmdList := &cobra.Command{
		Use:   "list [<id>...]",
		Short: "List the instances",
		Run:   list,
	}

	cmdCreate := &cobra.Command{
		Use:   "create <spec>...",
		Short: "Create instances",
		Long:  `Create new instance(s) using "spec"(s) as the initial values. Where "spec" is a valid json string.`,
		Run:   create,
	}

	cmdModify := &cobra.Command{
		Use:   "modify (<id> <spec>)...",
		Short: "Modify instances",
		Long:  `Modify given instance(s). Where "spec" is a valid json string.`,
		Run:   modify,
	}

	cmdDelete := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete instances",
		Run:   del,
	}

	cmdAction := &cobra.Command{
		Use:   "action <action> <id>... | action migrate <id> <dest>",
		Short: "Run a lifecycle action on instances",
		Long:  "Queue a lifecycle action (reboot, poweron, poweroff, suspend, resume) on the given instance(s). migrate takes a single instance and a destination host.",
		Run:   action,
	}

	cmdJob := &cobra.Command{
		Use:   "job <id>...",
		Short: "Show job status",
		Run:   job,
	}

	root.AddCommand(cmdList, cmdCreate, cmdModify, cmdDelete, cmdAction, cmdJob)
	_ = root.Execute()
}

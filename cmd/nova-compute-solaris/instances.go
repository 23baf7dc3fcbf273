package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/pkg/jobqueue"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
)

// actionJobs maps instance action names to job actions
var actionJobs = map[string]string{
	"reboot":   jobqueue.ActionReboot,
	"poweron":  jobqueue.ActionPowerOn,
	"poweroff": jobqueue.ActionPowerOff,
	"suspend":  jobqueue.ActionSuspend,
	"resume":   jobqueue.ActionResume,
	"migrate":  jobqueue.ActionMigrate,
}

// RegisterInstanceRoutes registers the instance routes and handlers
func RegisterInstanceRoutes(prefix string, router *mux.Router, m *metricsContext) {
	instanceMiddleware := alice.New(
		loadInstance,
	)

	router.Handle(prefix, m.mmw.HandlerFunc(ListInstances, "list")).Methods("GET")
	router.Handle(prefix, m.mmw.HandlerFunc(CreateInstance, "create")).Methods("POST")

	// TODO: Figure out a cleaner way to do middleware on the subrouter
	sub := router.PathPrefix(prefix).Subrouter()

	sub.Handle("/{instanceID}", instanceMiddleware.Append(m.mmw.HandlerWrapper("get")).ThenFunc(GetInstance)).Methods("GET")
	sub.Handle("/{instanceID}", instanceMiddleware.Append(m.mmw.HandlerWrapper("update")).ThenFunc(UpdateInstance)).Methods("PATCH")
	sub.Handle("/{instanceID}", instanceMiddleware.Append(m.mmw.HandlerWrapper("destroy")).ThenFunc(DestroyInstance)).Methods("DELETE")
	sub.Handle("/{instanceID}/info", instanceMiddleware.Append(m.mmw.HandlerWrapper("info")).ThenFunc(GetInstanceInfo)).Methods("GET")
	sub.Handle("/{instanceID}/console", instanceMiddleware.Append(m.mmw.HandlerWrapper("console")).ThenFunc(GetInstanceConsole)).Methods("GET")
	sub.Handle("/{instanceID}/actions/{actionName}", instanceMiddleware.Append(m.mmw.HandlerWrapper("action")).ThenFunc(InstanceAction)).Methods("POST")
}

// ListInstances gets a list of all instances
func ListInstances(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	ctx := GetContext(r)
	instances := make(novasolaris.Instances, 0)
	err := ctx.ForEachInstance(func(i *novasolaris.Instance) error {
		instances = append(instances, i)
		return nil
	})
	if err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusOK, instances)
}

// CreateInstance persists a new instance and queues its creation
func CreateInstance(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}

	instance, err := decodeInstance(r, nil)
	if err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}

	if !saveInstanceHelper(hr, instance) {
		return
	}

	instanceNewJobHelper(hr, r, instance, jobqueue.ActionCreate, "")
}

// GetInstance gets a particular instance
func GetInstance(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	hr.JSON(http.StatusOK, GetRequestInstance(r))
}

// UpdateInstance updates an existing instance
func UpdateInstance(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	instance := GetRequestInstance(r)

	if _, err := decodeInstance(r, instance); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return
	}

	if !saveInstanceHelper(hr, instance) {
		return
	}
	hr.JSON(http.StatusOK, instance)
}

// DestroyInstance queues removal of an instance and its zone
func DestroyInstance(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	instance := GetRequestInstance(r)
	instanceNewJobHelper(hr, r, instance, jobqueue.ActionDestroy, "")
}

// GetInstanceInfo reports the driver's view of an instance
func GetInstanceInfo(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	instance := GetRequestInstance(r)
	driver := GetDriver(r)

	info, err := driver.GetInfo(r.Context(), instance.Name)
	if err != nil {
		if _, ok := err.(virt.ErrInstanceNotFound); ok {
			hr.JSONMsg(http.StatusNotFound, err.Error())
			return
		}
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusOK, info)
}

// GetInstanceConsole returns the tail of the instance console log
func GetInstanceConsole(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	instance := GetRequestInstance(r)
	driver := GetDriver(r)

	out, err := driver.ConsoleOutput(r.Context(), instance.Name)
	if err != nil {
		if _, ok := err.(virt.ErrInstanceNotFound); ok {
			hr.JSONMsg(http.StatusNotFound, err.Error())
			return
		}
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}

	hr.Header().Set("Content-Type", "text/plain")
	hr.WriteHeader(http.StatusOK)
	_, _ = hr.Write(out)
}

// InstanceAction queues a lifecycle action for an instance
func InstanceAction(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	instance := GetRequestInstance(r)
	vars := mux.Vars(r)

	action, ok := actionJobs[vars["actionName"]]
	if !ok {
		hr.JSONMsg(http.StatusBadRequest, "invalid action")
		return
	}

	dest := ""
	if action == jobqueue.ActionMigrate {
		args := struct {
			Dest string `json:"dest"`
		}{}
		if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
			hr.JSONMsg(http.StatusBadRequest, err.Error())
			return
		}
		if args.Dest == "" {
			hr.JSONMsg(http.StatusBadRequest, "migrate requires a dest")
			return
		}
		dest = args.Dest
	}

	instanceNewJobHelper(hr, r, instance, action, dest)
}

// Package common contains common utilities and suites to be used in other tests
package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/pkg/kv"
	_ "github.com/guillermomolina/nova-solaris/pkg/kv/etcd"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
)

func init() {
	rand.Seed(time.Now().UnixNano())
}

// Suite sets up a general test suite with setup/teardown.
type Suite struct {
	suite.Suite
	KVDir      string
	KVPrefix   string
	KVPort     uint16
	KVURL      string
	KV         kv.KV
	KVCmd      *exec.Cmd
	TestPrefix string
	Context    *novasolaris.Context
}

// SetupSuite runs a new kv instance.
func (s *Suite) SetupSuite() {
	// Start up a test kv
	if s.TestPrefix == "" {
		s.TestPrefix = "nova-solaris-test"
	}
	s.KVDir, _ = ioutil.TempDir("", s.TestPrefix+"-"+uuid.New())
	if s.KVPort == 0 {
		s.KVPort = uint16(20000 + rand.Intn(20000))
	}
	clientURL := fmt.Sprintf("http://127.0.0.1:%d", s.KVPort)
	peerURL := fmt.Sprintf("http://127.0.0.1:%d", s.KVPort+1)
	s.KVCmd = exec.Command("etcd",
		"-name", s.TestPrefix,
		"-data-dir", s.KVDir,
		"-initial-cluster-state", "new",
		"-initial-cluster-token", s.TestPrefix,
		"-initial-cluster", s.TestPrefix+"="+peerURL,
		"-initial-advertise-peer-urls", peerURL,
		"-listen-peer-urls", peerURL,
		"-listen-client-urls", clientURL,
		"-advertise-client-urls", clientURL,
	)
	if testing.Verbose() {
		s.KVCmd.Stdout = os.Stdout
		s.KVCmd.Stderr = os.Stderr
	}
	s.Require().NoError(s.KVCmd.Start())
	time.Sleep(500 * time.Millisecond) // Wait for test kv to be ready

	var err error
	for i := 0; i < 10; i++ {
		s.KV, err = kv.New(clientURL)
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond) // Wait for test kv to be ready
	}
	if s.KV == nil {
		panic(err)
	}
	s.Context = novasolaris.NewContext(s.KV)
	s.KVPrefix = "nova-solaris"
	s.KVURL = clientURL
}

// SetupTest prepares anything needed per test.
func (s *Suite) SetupTest() {
}

// TearDownTest cleans the kv instance.
func (s *Suite) TearDownTest() {
	// Clean out kv
	s.Require().NoError(s.KV.Delete(s.KVPrefix, true))
}

// TearDownSuite stops the kv instance and removes all data.
func (s *Suite) TearDownSuite() {
	// Stop the test kv process
	s.Require().NoError(s.KVCmd.Process.Kill())
	s.Require().Error(s.KVCmd.Wait())

	// Remove the test kv data directory
	_ = os.RemoveAll(s.KVDir)
}

// PrefixKey generates an kv key using the set prefix
func (s *Suite) PrefixKey(key string) string {
	return filepath.Join(s.KVPrefix, key)
}

// NewFlavor creates and saves a new Flavor.
func (s *Suite) NewFlavor() *novasolaris.Flavor {
	f := s.Context.NewFlavor()
	f.Name = "flavor-" + uuid.New()
	f.Image = uuid.New()
	f.Resources = virt.Resources{
		MemoryMB: 1024,
		DiskGB:   10,
		VCPUs:    1,
	}
	_ = f.Save()
	return f
}

// NewHost creates and saves a new Host.
func (s *Suite) NewHost() *novasolaris.Host {
	h := s.Context.NewHost()
	h.Hostname = "compute-" + uuid.New()
	h.IP = net.ParseIP("192.168.100.11")
	_ = h.Save()
	return h
}

// NewInstance creates and saves a new Instance. Creates any necessary
// resources.
func (s *Suite) NewInstance() *novasolaris.Instance {
	flavor := s.NewFlavor()

	instance := s.Context.NewInstance()
	instance.FlavorID = flavor.ID

	_ = instance.Save()
	return instance
}

// NewHostWithInstance creates and saves a new Host and Instance, with the
// Instance placed on the Host.
func (s *Suite) NewHostWithInstance() (*novasolaris.Host, *novasolaris.Instance) {
	instance := s.NewInstance()
	host := s.NewHost()

	instance.HostID = host.ID
	s.Require().NoError(instance.Save())

	return host, instance
}

// DoRequest is a convenience method for making an http request and doing basic handling of the response.
func (s *Suite) DoRequest(method, url string, expectedRespCode int, postBodyStruct interface{}, respBody interface{}) *http.Response {
	var postBody io.Reader
	if postBodyStruct != nil {
		bodyBytes, _ := json.Marshal(postBodyStruct)
		postBody = bytes.NewBuffer(bodyBytes)
	}

	req, err := http.NewRequest(method, url, postBody)
	s.NoError(err)
	if postBody != nil {
		req.Header.Add("Content-Type", "application/json")
	}

	client := &http.Client{}
	resp, err := client.Do(req)
	s.NoError(err)
	correctResponse := s.Equal(expectedRespCode, resp.StatusCode)
	defer func() { _ = resp.Body.Close() }()

	body, err := ioutil.ReadAll(resp.Body)
	s.NoError(err)

	if correctResponse {
		s.NoError(json.Unmarshal(body, respBody))
	} else {
		s.T().Log(string(body))
	}
	return resp
}

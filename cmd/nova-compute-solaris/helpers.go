package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/context"
	"github.com/gorilla/mux"
	"github.com/pborman/uuid"

	"github.com/guillermomolina/nova-solaris"
)

const instanceKey = "instance"

// loadInstance is a middleware to load an instance into the request context
// and handles sending a response in case of error
func loadInstance(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hr := HTTPResponse{w}
		ctx := GetContext(r)
		vars := mux.Vars(r)
		instanceID, ok := vars["instanceID"]
		if !ok {
			hr.JSONMsg(http.StatusBadRequest, "missing instance id")
			return
		}
		if uuid.Parse(instanceID) == nil {
			hr.JSONMsg(http.StatusBadRequest, "invalid instance id")
			return
		}
		instance, err := ctx.Instance(instanceID)
		if err != nil {
			if ctx.IsKeyNotFound(err) {
				hr.JSONMsg(http.StatusNotFound, "instance not found")
				return
			}
			hr.JSONError(http.StatusInternalServerError, err)
			return
		}
		SetRequestInstance(r, instance)
		h.ServeHTTP(w, r)
	})
}

// saveInstanceHelper saves the instance object and handles sending a
// response in case of error
func saveInstanceHelper(hr HTTPResponse, instance *novasolaris.Instance) bool {
	if err := instance.Validate(); err != nil {
		hr.JSONMsg(http.StatusBadRequest, err.Error())
		return false
	}
	if err := instance.Save(); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return false
	}
	return true
}

// decodeInstance decodes request body JSON into an instance object
func decodeInstance(r *http.Request, instance *novasolaris.Instance) (*novasolaris.Instance, error) {
	if instance == nil {
		ctx := GetContext(r)
		instance = ctx.NewInstance()
	}

	if err := json.NewDecoder(r.Body).Decode(instance); err != nil {
		return nil, err
	}
	return instance, nil
}

// instanceNewJobHelper creates a new job for an instance action and handles
// sending a response
func instanceNewJobHelper(hr HTTPResponse, r *http.Request, instance *novasolaris.Instance, action, dest string) {
	jobQueue := GetJobQueue(r)
	job, err := jobQueue.AddJobWithDest(instance.ID, action, dest)
	if err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.Header().Set("X-Instance-Job-ID", job.ID)
	hr.JSON(http.StatusAccepted, instance)
}

// SetRequestInstance saves the instance to the request context
func SetRequestInstance(r *http.Request, i *novasolaris.Instance) {
	context.Set(r, instanceKey, i)
}

// GetRequestInstance retrieves the instance from the request context
func GetRequestInstance(r *http.Request) *novasolaris.Instance {
	return context.Get(r, instanceKey).(*novasolaris.Instance)
}

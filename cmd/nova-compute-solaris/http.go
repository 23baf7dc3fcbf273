package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"strings"
	"time"

	logrusmiddleware "github.com/bakins/logrus-middleware"
	recovery "github.com/bakins/net-http-recover"
	"github.com/gorilla/context"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	log "github.com/sirupsen/logrus"
	"github.com/tylerb/graceful"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/pkg/jobqueue"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
)

const (
	ctxKey    string = "novaContext"
	jQKey     string = "novaJobQueue"
	driverKey string = "novaDriver"
)

type (
	// HTTPResponse is a wrapper for http.ResponseWriter which provides access
	// to several convenience methods
	HTTPResponse struct {
		http.ResponseWriter
	}

	// HTTPError contains information for http error responses
	HTTPError struct {
		Message string   `json:"message"`
		Code    int      `json:"code"`
		Stack   []string `json:"stack"`
	}
)

// Run starts the server
func Run(port uint, ctx *novasolaris.Context, jobQueue *jobqueue.Client, driver virt.Driver, m *metricsContext) *graceful.Server {
	router := mux.NewRouter()
	router.StrictSlash(true)

	// Common middleware applied to every request
	logrusMiddleware := logrusmiddleware.Middleware{
		Name: "nova-compute-solaris",
	}
	commonMiddleware := alice.New(
		func(h http.Handler) http.Handler {
			return logrusMiddleware.Handler(h, "")
		},
		handlers.CompressHandler,
		func(h http.Handler) http.Handler {
			return recovery.Handler(os.Stderr, h, true)
		},
		func(h http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				context.Set(r, ctxKey, ctx)
				context.Set(r, jQKey, jobQueue)
				context.Set(r, driverKey, driver)
				h.ServeHTTP(w, r)
			})
		},
	)

	// NOTE: Due to weirdness with PrefixPath and StrictSlash, can't just pass
	// a prefixed subrouter to the register functions and have the base path
	// work cleanly. The register functions need to add a base path handler to
	// the main router before setting subhandlers on either main or subrouter

	RegisterInstanceRoutes("/instances", router, m)
	RegisterJobRoutes("/jobs", router, m)

	router.Handle("/resources", m.mmw.HandlerFunc(GetResources, "resources")).Methods("GET")

	router.HandleFunc("/metrics",
		func(w http.ResponseWriter, r *http.Request) {
			hr := HTTPResponse{w}
			hr.JSON(http.StatusOK, m.sink)
		})

	server := &graceful.Server{
		Timeout: 5 * time.Second,
		Server: &http.Server{
			Addr:           fmt.Sprintf(":%d", port),
			Handler:        commonMiddleware.Then(router),
			MaxHeaderBytes: 1 << 20,
		},
	}
	go listenAndServe(server)
	return server
}

func listenAndServe(server *graceful.Server) {
	if err := server.ListenAndServe(); err != nil {
		// Ignore the error from closing the listener, which is involved in the
		// graceful shutdown
		if !strings.Contains(err.Error(), "use of closed network connection") {
			log.WithField("error", err).Fatal("server error")
		}
	}
}

// GetResources reports the host resources from the driver
func GetResources(w http.ResponseWriter, r *http.Request) {
	hr := HTTPResponse{w}
	driver := GetDriver(r)
	res, err := driver.AvailableResource(r.Context())
	if err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
		return
	}
	hr.JSON(http.StatusOK, res)
}

// JSON writes appropriate headers and JSON body to the http response
func (hr *HTTPResponse) JSON(code int, obj interface{}) {
	hr.Header().Set("Content-Type", "application/json")
	hr.WriteHeader(code)
	encoder := json.NewEncoder(hr)
	if err := encoder.Encode(obj); err != nil {
		hr.JSONError(http.StatusInternalServerError, err)
	}
}

// JSONError prepares an HTTPError with a stack trace and writes it with
// HTTPResponse.JSON
func (hr *HTTPResponse) JSONError(code int, err error) {
	httpError := &HTTPError{
		Message: err.Error(),
		Code:    code,
		Stack:   make([]string, 0, 4),
	}
	for i := 1; ; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		// Print this much at least.  If we can't find the source, it won't show.
		httpError.Stack = append(httpError.Stack, fmt.Sprintf("%s:%d (0x%x)", file, line, pc))
	}
	hr.JSON(code, httpError)
}

// JSONMsg is a convenience method to write a JSON response with just a message
// string
func (hr *HTTPResponse) JSONMsg(code int, msg string) {
	msgObj := map[string]string{
		"message": msg,
	}
	hr.JSON(code, msgObj)
}

// GetContext retrieves a novasolaris.Context value for a request
func GetContext(r *http.Request) *novasolaris.Context {
	if value := context.Get(r, ctxKey); value != nil {
		return value.(*novasolaris.Context)
	}
	return nil
}

// GetJobQueue retrieves a jobqueue.Client value for a request
func GetJobQueue(r *http.Request) *jobqueue.Client {
	if value := context.Get(r, jQKey); value != nil {
		return value.(*jobqueue.Client)
	}
	return nil
}

// GetDriver retrieves a virt.Driver value for a request
func GetDriver(r *http.Request) virt.Driver {
	if value := context.Get(r, driverKey); value != nil {
		return value.(virt.Driver)
	}
	return nil
}

package cli

import (
	"encoding/json"
	"net/http"
	"path"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Client is a minimal JSON API client for the compute daemon
type Client struct {
	c      http.Client
	t      string //type
	scheme string
	addr   string
}

// NewClient creates a Client for a server address
func NewClient(address string) *Client {
	parts := strings.SplitN(address, "://", 2)
	return &Client{scheme: parts[0], addr: parts[1], t: "application/json"}
}

// URLString builds the full url for an endpoint
func (c *Client) URLString(endpoint string) string {
	return c.scheme + "://" + path.Join(c.addr, endpoint)
}

// GetMany fetches a list of resources
func (c *Client) GetMany(title, endpoint string) []map[string]interface{} {
	resp, err := c.c.Get(c.URLString(endpoint))
	if err != nil {
		log.WithField("error", err).Fatal("failed to get " + title)
	}
	ret := []map[string]interface{}{}
	processResponse(resp, title, http.StatusOK, &ret)
	return ret
}

// Get fetches a single resource
func (c *Client) Get(title, endpoint string) map[string]interface{} {
	resp, err := c.c.Get(c.URLString(endpoint))
	if err != nil {
		log.WithField("error", err).Fatal("failed to get " + title)
	}
	ret := map[string]interface{}{}
	processResponse(resp, title, http.StatusOK, &ret)
	return ret
}

// Post sends a resource and expects the given status back
func (c *Client) Post(title, endpoint, body string, status int) map[string]interface{} {
	resp, err := c.c.Post(c.URLString(endpoint), c.t, strings.NewReader(body))
	if err != nil {
		log.WithFields(log.Fields{
			"error": err,
			"body":  body,
		}).Fatal("unable to create new " + title)
	}
	ret := map[string]interface{}{}
	processResponse(resp, title, status, &ret)
	return ret
}

// Del deletes a resource
func (c *Client) Del(title, endpoint string, status int) map[string]interface{} {
	addr := c.URLString(endpoint)
	req, err := http.NewRequest("DELETE", addr, nil)
	if err != nil {
		log.WithFields(log.Fields{
			"error":   err,
			"address": addr,
		}).Fatal("unable to form request")
	}
	req.Header.Add("Content-Type", c.t)
	resp, err := c.c.Do(req)
	if err != nil {
		log.WithFields(log.Fields{
			"error":   err,
			"address": addr,
		}).Fatal("unable to complete request")
	}
	ret := map[string]interface{}{}
	processResponse(resp, title, status, &ret)
	return ret
}

// Patch updates a resource
func (c *Client) Patch(title, endpoint, body string) map[string]interface{} {
	addr := c.URLString(endpoint)
	req, err := http.NewRequest("PATCH", addr, strings.NewReader(body))
	if err != nil {
		log.WithFields(log.Fields{
			"error":   err,
			"address": addr,
			"body":    body,
		}).Fatal("unable to form request")
	}
	req.Header.Add("Content-Type", c.t)
	resp, err := c.c.Do(req)
	if err != nil {
		log.WithFields(log.Fields{
			"error":   err,
			"address": addr,
			"body":    body,
		}).Fatal("unable to complete request")
	}
	ret := map[string]interface{}{}
	processResponse(resp, title, http.StatusOK, &ret)
	return ret
}

func processResponse(response *http.Response, title string, status int, dest interface{}) {
	defer response.Body.Close()

	if response.StatusCode != status {
		log.WithFields(log.Fields{
			"status": response.Status,
			"code":   response.StatusCode,
		}).Fatal("failed to get " + title)
	}

	if err := json.NewDecoder(response.Body).Decode(dest); err != nil {
		log.WithField("error", err).Fatal("failed to parse json")
	}
}

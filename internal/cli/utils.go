package cli

import (
	"encoding/json"

	"github.com/pborman/uuid"
	log "github.com/sirupsen/logrus"
)

// AssertID exits when id is not a uuid, before any request goes out
func AssertID(id string) {
	if uuid.Parse(id) == nil {
		log.WithField("id", id).Fatal("invalid id")
	}
}

// AssertSpec exits when spec does not parse as a json object
func AssertSpec(spec string) {
	if err := json.Unmarshal([]byte(spec), &JMap{}); err != nil {
		log.WithFields(log.Fields{
			"spec":  spec,
			"error": err,
		}).Fatal("invalid spec")
	}
}

package notify

import (
	"encoding/json"
	"time"

	"github.com/go-scimm/scimm/internal/httputil"
)

type Config struct {
	Targets              Targets       `envconfig:"SCIMM_NOTIFY_TARGETS"`
	Interval             time.Duration `envconfig:"SCIMM_NOTIFY_INTERVAL" default:"5s"`
	MaxConcurrentRequest int           `envconfig:"SCIMM_NOTIFY_MAX_CONCURRENT_REQUEST" default:"16"`
	RequestTimeout       time.Duration `envconfig:"SCIMM_NOTIFY_REQUEST_TIMEOUT" default:"10s"`
	MaxPending           int           `envconfig:"SCIMM_NOTIFY_MAX_PENDING" default:"10000"`
}

type Targets []Target

func (ts *Targets) Decode(value string) error {
	targets := []Target{}
	if err := json.Unmarshal([]byte(value), &targets); err != nil {
		return err
	}
	*ts = targets
	return nil
}

// Target receives the trained profiles of Class, or of every class when
// Class is empty.
type Target struct {
	URL        string                    `json:"url"`
	Class      string                    `json:"class"`
	HTTPConfig httputil.HTTPClientConfig `json:"httpConfig"`
}

func (t Target) accepts(class string) bool {
	return t.Class == "" || t.Class == class
}

package scrape

import (
	"encoding/json"
	"time"

	"github.com/go-scimm/scimm/internal/httputil"
)

type Config struct {
	Targets              Targets       `envconfig:"SCIMM_SCRAPE_TARGETS"`
	MaxConcurrentRequest int           `envconfig:"SCIMM_SCRAPE_MAX_CONCURRENT_REQUEST" default:"16"`
	Interval             time.Duration `envconfig:"SCIMM_SCRAPE_INTERVAL" default:"30s"`
	RequestTimeout       time.Duration `envconfig:"SCIMM_SCRAPE_REQUEST_TIMEOUT" default:"10s"`
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

// Target is polled for samples. Class overrides the class of the response
// when set.
type Target struct {
	URL        string                    `json:"url"`
	Class      string                    `json:"class"`
	HTTPConfig httputil.HTTPClientConfig `json:"httpConfig"`
}

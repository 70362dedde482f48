package score

import "time"

type Config struct {
	RequestTimeout  time.Duration `envconfig:"SCIMM_SCORE_REQUEST_TIMEOUT" default:"30s"`
	MaxDataItemsLen int           `envconfig:"SCIMM_SCORE_MAX_DATA_ITEMS_LEN" default:"100"`
}

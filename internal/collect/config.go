package collect

import (
	"time"
)

type Config struct {
	RequestTimeout  time.Duration `envconfig:"SCIMM_COLLECT_REQUEST_TIMEOUT" default:"60s"`
	MaxDataItemsLen int           `envconfig:"SCIMM_COLLECT_MAX_DATA_ITEMS_LEN" default:"10000"`
}

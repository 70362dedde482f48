package classify

import "time"

type Config struct {
	RequestTimeout  time.Duration `envconfig:"SCIMM_CLASSIFY_REQUEST_TIMEOUT" default:"30s"`
	MaxDataItemsLen int           `envconfig:"SCIMM_CLASSIFY_MAX_DATA_ITEMS_LEN" default:"100"`
	// number of classes returned when the request does not say
	DefaultTop int `envconfig:"SCIMM_CLASSIFY_DEFAULT_TOP" default:"3"`
}

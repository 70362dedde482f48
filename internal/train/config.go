package train

import "time"

type Config struct {
	RequestTimeout time.Duration `envconfig:"SCIMM_TRAIN_REQUEST_TIMEOUT" default:"10m"`
}

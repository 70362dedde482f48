package trainer

import (
	"time"

	"github.com/go-scimm/scimm/internal/icm"
)

type Config struct {
	// Window length of the trained models, the last symbol is predicted
	ModelLen int `envconfig:"SCIMM_MODEL_LEN" default:"12"`
	// Maximum context tree depth
	ModelDepth int `envconfig:"SCIMM_MODEL_DEPTH" default:"7"`
	// Number of frame sub-models, 3 for codon position
	Periodicity int `envconfig:"SCIMM_PERIODICITY" default:"3"`
	// GC fraction of the independent background model used for log-odds
	BackgroundGC float64 `envconfig:"SCIMM_BACKGROUND_GC" default:"0.5"`
	// A class is not trained with fewer samples
	MinSamples int `envconfig:"SCIMM_MIN_SAMPLES" default:"1"`
	// Interval of retraining classes with new samples, 0 disables it
	RetrainInterval time.Duration `envconfig:"SCIMM_RETRAIN_INTERVAL" default:"1m"`
	// Maximum number of classes trained at the same time
	MaxConcurrentTrain int `envconfig:"SCIMM_MAX_CONCURRENT_TRAIN" default:"2"`
	// Timer for performing data cleaning operations in the DB
	RebuildDBTime time.Duration `envconfig:"SCIMM_REBUILD_DB_TIME" default:"15s"`
	// Maximum number of samples in the DB for each class
	MaxItemsStored int `envconfig:"SCIMM_MAX_ITEMS_STORED" default:"100000"`
	// Maximum retention period of trained samples, 0 keeps them forever
	MaxStorageTime time.Duration `envconfig:"SCIMM_MAX_STORAGE_TIME" default:"0s"`
	// Buffer size at which collected samples are flushed to disk
	DBFlushSize int `envconfig:"SCIMM_DB_FLUSH_SIZE" default:"64"`
	// Maximum time collected samples stay in the buffer
	DBFlushTime time.Duration `envconfig:"SCIMM_DB_FLUSH_TIME" default:"5s"`
}

func (c *Config) ModelConfig() icm.Config {
	return icm.Config{
		ModelLen:    c.ModelLen,
		ModelDepth:  c.ModelDepth,
		Periodicity: c.Periodicity,
		Alphabet:    icm.DNA,
	}
}

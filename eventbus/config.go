package eventbus

// Delivery modes
const (
	DeliverySync  = "sync"
	DeliveryAsync = "async"
)

// Config defines the configuration for the event bus
type Config struct {
	// DeliveryMode selects in-publisher delivery ("sync") or a queue and
	// goroutine per subscription ("async").
	DeliveryMode string `json:"delivery_mode" yaml:"delivery_mode" toml:"delivery_mode" env:"DELIVERY_MODE" default:"sync"`

	// BufferSize bounds each async subscription queue. Events beyond it are dropped.
	BufferSize int `json:"buffer_size" yaml:"buffer_size" toml:"buffer_size" env:"BUFFER_SIZE" default:"64"`

	// HistorySize is the number of recent events retained for debugging. Zero disables history.
	HistorySize int `json:"history_size" yaml:"history_size" toml:"history_size" env:"HISTORY_SIZE" default:"100"`
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		DeliveryMode: DeliverySync,
		BufferSize:   64,
		HistorySize:  100,
	}
}

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	// Environment
	Environment string

	// Database (empty = in-memory ledger, mock mode)
	DatabaseURL string

	// Redis
	RedisURL string

	// Server
	Port string

	// Identity & settlement
	ServerID        string
	ContractAddress string
	SignerKeyFile   string
	JWTSecret       string

	// Indexer event feed
	IndexerBaseURL     string
	IndexerPollSeconds int
	IndexerPageSize    int

	// Economic TTLs. An exit reservation always lives until its ticket's
	// deadline; the margin extends it past the deadline to cover
	// confirmation lag, so a live ticket is always backed by reserved funds.
	ExitTicketTTLSecs     int
	ReservationMarginSecs int
	DisconnectGraceSecs   int

	// Room tuning
	Room RoomConfig
}

// RoomConfig holds per-room simulation and economy constants. Loaded once at
// room creation from a YAML file; every room on a server shares it.
type RoomConfig struct {
	TickRate      int `yaml:"tick_rate"`
	SlowTickEvery int `yaml:"slow_tick_every"`

	WorldWidth  float64 `yaml:"world_width"`
	WorldHeight float64 `yaml:"world_height"`

	FoodMass   int64 `yaml:"food_mass"`
	FoodTarget int   `yaml:"food_target"`

	VirusMin          int     `yaml:"virus_min"`
	VirusMass         int64   `yaml:"virus_mass"`
	VirusFeedsToShoot int     `yaml:"virus_feeds_to_shoot"`
	VirusShotSpeed    float64 `yaml:"virus_shot_speed"`

	EatRatio       float64 `yaml:"eat_ratio"`
	EatOverlapFrac float64 `yaml:"eat_overlap_frac"`

	MaxCells            int     `yaml:"max_cells"`
	SplitMinMass        int64   `yaml:"split_min_mass"`
	SplitSpeed          float64 `yaml:"split_speed"`
	EjectMinMass        int64   `yaml:"eject_min_mass"`
	EjectMassLoss       int64   `yaml:"eject_mass_loss"`
	EjectedMass         int64   `yaml:"ejected_mass"`
	EjectSpeed          float64 `yaml:"eject_speed"`
	MaxMassPerCell      int64   `yaml:"max_mass_per_cell"`
	RecombineBaseTicks  int     `yaml:"recombine_base_ticks"`
	RecombineMassFactor float64 `yaml:"recombine_mass_factor"`

	DecayRatePerMille int64 `yaml:"decay_rate_per_mille"`
	DecayMinMass      int64 `yaml:"decay_min_mass"`

	MoveDecay     float64 `yaml:"move_decay"`
	BaseSpeed     float64 `yaml:"base_speed"`
	SpeedExponent float64 `yaml:"speed_exponent"`
	MassPerUnit   int64   `yaml:"mass_per_unit"`
	PopBigMass    int64   `yaml:"pop_big_mass"`
}

// DefaultRoomConfig returns the compiled-in room tuning. A YAML file given via
// ROOM_CONFIG_FILE overrides it.
func DefaultRoomConfig() RoomConfig {
	return RoomConfig{
		TickRate:            20,
		SlowTickEvery:       20,
		WorldWidth:          14000,
		WorldHeight:         14000,
		FoodMass:            1,
		FoodTarget:          1000,
		VirusMin:            10,
		VirusMass:           100,
		VirusFeedsToShoot:   7,
		VirusShotSpeed:      780,
		EatRatio:            1.25,
		EatOverlapFrac:      0.4,
		MaxCells:            16,
		SplitMinMass:        36,
		SplitSpeed:          780,
		EjectMinMass:        32,
		EjectMassLoss:       16,
		EjectedMass:         12,
		EjectSpeed:          550,
		MaxMassPerCell:      22500,
		RecombineBaseTicks:  600,
		RecombineMassFactor: 0.02,
		DecayRatePerMille:   2,
		DecayMinMass:        100,
		MoveDecay:           0.75,
		BaseSpeed:           30,
		SpeedExponent:       -0.222,
		MassPerUnit:         10,
		PopBigMass:          60,
	}
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", "redis://localhost:6379/0"),

		Port: getEnv("APP_PORT", "8080"),

		ServerID:        getEnv("SERVER_ID", uuid.NewString()),
		ContractAddress: getEnv("SETTLEMENT_CONTRACT", "0x0000000000000000000000000000000000000000"),
		SignerKeyFile:   getEnv("SIGNER_KEY_FILE", "signer.key"),
		JWTSecret:       getEnv("JWT_SECRET", "change-me-in-production"),

		IndexerBaseURL:     getEnv("INDEXER_BASE_URL", ""),
		IndexerPollSeconds: getEnvInt("INDEXER_POLL_SECONDS", 10),
		IndexerPageSize:    getEnvInt("INDEXER_PAGE_SIZE", 100),

		ExitTicketTTLSecs:     getEnvInt("EXIT_TICKET_TTL_SECONDS", 600),
		ReservationMarginSecs: getEnvInt("RESERVATION_MARGIN_SECONDS", 120),
		DisconnectGraceSecs:   getEnvInt("DISCONNECT_GRACE_PERIOD_SECONDS", 60),

		Room: DefaultRoomConfig(),
	}

	if path := getEnv("ROOM_CONFIG_FILE", ""); path != "" {
		if err := loadRoomFile(path, &cfg.Room); err != nil {
			return nil, fmt.Errorf("load room config %s: %w", path, err)
		}
	}

	// Both drive ticker intervals and modulo checks downstream.
	if cfg.Room.TickRate < 1 {
		return nil, fmt.Errorf("room config: tick_rate must be at least 1, got %d", cfg.Room.TickRate)
	}
	if cfg.Room.SlowTickEvery < 1 {
		return nil, fmt.Errorf("room config: slow_tick_every must be at least 1, got %d", cfg.Room.SlowTickEvery)
	}

	return cfg, nil
}

func loadRoomFile(path string, rc *RoomConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, rc)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

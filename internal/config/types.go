package config

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port" validate:"gt=0,lte=65535"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DatabaseConfig contains the Postgres mirror connection. Empty URL disables the mirror.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig contains driver authentication settings
type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	DriverUsername     string `yaml:"driver_username" validate:"required"`
	DriverPasswordHash string `yaml:"driver_password_hash"`
	TokenTTLHours      int    `yaml:"token_ttl_hours" validate:"gt=0"`
}

// FirebaseConfig contains Firebase credentials for the RTDB mirror and push notifications
type FirebaseConfig struct {
	CredentialsBase64 string `yaml:"credentials_base64"`
	CredentialsFile   string `yaml:"credentials_file"`
	DatabaseURL       string `yaml:"database_url" validate:"omitempty,url"`
	FCMEnabled        bool   `yaml:"fcm_enabled"`
}

// AMQPConfig contains the RabbitMQ mirror settings. Empty URL disables the mirror.
type AMQPConfig struct {
	URL      string `yaml:"url" validate:"omitempty,url"`
	Exchange string `yaml:"exchange" validate:"required"`
}

// TrackingConfig holds the liveness and proximity tuning
type TrackingConfig struct {
	OnlineThresholdMS         int64   `yaml:"online_threshold_ms" validate:"gt=0"`
	ActiveStopThresholdMeters float64 `yaml:"active_stop_threshold_meters" validate:"gt=0"`
	LivenessPollIntervalMS    int64   `yaml:"liveness_poll_interval_ms" validate:"gt=0"`
	FixTimeoutMS              int64   `yaml:"fix_timeout_ms" validate:"gt=0"`
	BroadcastPrefix           string  `yaml:"broadcast_prefix" validate:"required,excludes=/"`
}

// StopConfig is one stop as written in the routes file
type StopConfig struct {
	ID   string  `yaml:"id" validate:"required"`
	Name string  `yaml:"name" validate:"required"`
	Lat  float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng  float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

// RouteConfig is one vehicle route as written in the routes file
type RouteConfig struct {
	VehicleID string       `yaml:"vehicle_id" validate:"required,excludes=/"`
	Name      string       `yaml:"name"`
	Stops     []StopConfig `yaml:"stops" validate:"required,min=1,dive"`
}

// Config is the root configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Firebase FirebaseConfig `yaml:"firebase"`
	AMQP     AMQPConfig     `yaml:"amqp"`
	Tracking TrackingConfig `yaml:"tracking"`
	Routes   []RouteConfig  `yaml:"routes" validate:"dive"`
}

package configtypes

type Log struct {
	// Level is a log level: trace, debug, info, warn, error, fatal or none.
	Level string `mapstructure:"level" json:"level" toml:"level" yaml:"level"`
	// File is an optional log file path. By default logs go to STDOUT.
	File string `mapstructure:"file" json:"file" toml:"file" yaml:"file"`
}

// Realtime describes how to reach the realtime chat/notification server.
type Realtime struct {
	// URL is the base URL of the realtime server, ex. http://localhost:5000.
	URL string `mapstructure:"url" json:"url" toml:"url" yaml:"url"`
	// Path is the endpoint prefix for both websocket and polling transports.
	Path string `mapstructure:"path" json:"path" toml:"path" yaml:"path"`
	// Transports in preference order. Supported: websocket, polling.
	Transports []string `mapstructure:"transports" json:"transports" toml:"transports" yaml:"transports"`
	// ConnectTimeout bounds a single connection attempt including the handshake.
	ConnectTimeout Duration `mapstructure:"connect_timeout" json:"connect_timeout" toml:"connect_timeout" yaml:"connect_timeout"`
	// Reconnection enables automatic reconnection after an unexpected disconnect.
	Reconnection bool `mapstructure:"reconnection" json:"reconnection" toml:"reconnection" yaml:"reconnection"`
	// ReconnectionAttempts caps automatic reconnection attempts.
	ReconnectionAttempts int `mapstructure:"reconnection_attempts" json:"reconnection_attempts" toml:"reconnection_attempts" yaml:"reconnection_attempts"`
	// ReconnectionDelay is the delay before the first reconnection attempt.
	ReconnectionDelay Duration `mapstructure:"reconnection_delay" json:"reconnection_delay" toml:"reconnection_delay" yaml:"reconnection_delay"`
	// ReconnectionDelayMax caps the growing delay between attempts.
	ReconnectionDelayMax Duration `mapstructure:"reconnection_delay_max" json:"reconnection_delay_max" toml:"reconnection_delay_max" yaml:"reconnection_delay_max"`
	// PingInterval for websocket keepalive pings. Zero disables pings.
	PingInterval Duration `mapstructure:"ping_interval" json:"ping_interval" toml:"ping_interval" yaml:"ping_interval"`
	// WriteTimeout for a single websocket write.
	WriteTimeout Duration `mapstructure:"write_timeout" json:"write_timeout" toml:"write_timeout" yaml:"write_timeout"`
	// PollTimeout bounds a single long-polling GET. Keep it above the server poll timeout.
	PollTimeout Duration `mapstructure:"poll_timeout" json:"poll_timeout" toml:"poll_timeout" yaml:"poll_timeout"`
}

type Chat struct {
	// LeavePreviousRoom sends leave_chat for the active room before joining another one.
	LeavePreviousRoom bool `mapstructure:"leave_previous_room" json:"leave_previous_room" toml:"leave_previous_room" yaml:"leave_previous_room"`
	// RejoinOnReconnect re-sends join_chat for the active room after the transport reconnects.
	RejoinOnReconnect bool `mapstructure:"rejoin_on_reconnect" json:"rejoin_on_reconnect" toml:"rejoin_on_reconnect" yaml:"rejoin_on_reconnect"`
	// TypingRateLimit is the max number of typing=true intents per second. Zero means unlimited.
	TypingRateLimit float64 `mapstructure:"typing_rate_limit" json:"typing_rate_limit" toml:"typing_rate_limit" yaml:"typing_rate_limit"`
}

type Bridge struct {
	// ReconnectOnLogin forces a fresh connection on every login signal even when
	// a connection for the same token already exists.
	ReconnectOnLogin bool `mapstructure:"reconnect_on_login" json:"reconnect_on_login" toml:"reconnect_on_login" yaml:"reconnect_on_login"`
	ToastDuration    Duration `mapstructure:"toast_duration" json:"toast_duration" toml:"toast_duration" yaml:"toast_duration"`
	// ToastTemplate is a fasttemplate with {{title}}, {{message}} and {{action_url}} tags.
	ToastTemplate string `mapstructure:"toast_template" json:"toast_template" toml:"toast_template" yaml:"toast_template"`
	// RefetchOnNotification triggers an authoritative refetch after each optimistic insert.
	RefetchOnNotification bool     `mapstructure:"refetch_on_notification" json:"refetch_on_notification" toml:"refetch_on_notification" yaml:"refetch_on_notification"`
	RefetchTimeout        Duration `mapstructure:"refetch_timeout" json:"refetch_timeout" toml:"refetch_timeout" yaml:"refetch_timeout"`
}

type API struct {
	// URL of the REST backend. Defaults to realtime.url when empty.
	URL     string   `mapstructure:"url" json:"url" toml:"url" yaml:"url"`
	Timeout Duration `mapstructure:"timeout" json:"timeout" toml:"timeout" yaml:"timeout"`
}

type Auth struct {
	// TokenFile is where the credential is stored. Defaults to a file in the user config dir.
	TokenFile string `mapstructure:"token_file" json:"token_file" toml:"token_file" yaml:"token_file"`
	// Watch enables reacting to credential file changes made by other processes.
	Watch bool `mapstructure:"watch" json:"watch" toml:"watch" yaml:"watch"`
}

type Prometheus struct {
	Enabled bool   `mapstructure:"enabled" json:"enabled" toml:"enabled" yaml:"enabled"`
	Address string `mapstructure:"address" json:"address" toml:"address" yaml:"address"`
}

type DevServer struct {
	Address string `mapstructure:"address" json:"address" toml:"address" yaml:"address"`
	// HMACSecret verifies HS256 connection tokens.
	HMACSecret     string   `mapstructure:"hmac_secret" json:"hmac_secret" toml:"hmac_secret" yaml:"hmac_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins" json:"allowed_origins" toml:"allowed_origins" yaml:"allowed_origins"`
	// PollTimeout is how long a long-polling GET waits for frames.
	PollTimeout Duration `mapstructure:"poll_timeout" json:"poll_timeout" toml:"poll_timeout" yaml:"poll_timeout"`
}

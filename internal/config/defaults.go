package config

import "campusbus-backend/internal/broadcast"

// Default returns the built-in configuration used when no file overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			DriverUsername: "driver",
			TokenTTLHours:  12,
		},
		AMQP: AMQPConfig{
			Exchange: "bus_locations",
		},
		Tracking: TrackingConfig{
			OnlineThresholdMS:         15000,
			ActiveStopThresholdMeters: 500,
			LivenessPollIntervalMS:    2000,
			FixTimeoutMS:              10000,
			BroadcastPrefix:           broadcast.DefaultPrefix,
		},
		Routes: defaultRoutes(),
	}
}

func defaultRoutes() []RouteConfig {
	return []RouteConfig{
		{
			VehicleID: "Bus1",
			Name:      "Bus 1",
			Stops: []StopConfig{
				{ID: "talapady", Name: "Talapady", Lat: 12.7710, Lng: 74.8660},
				{ID: "beeri", Name: "Beeri", Lat: 12.7930, Lng: 74.8720},
				{ID: "kotekar", Name: "Kotekar", Lat: 12.7990, Lng: 74.8740},
				{ID: "kolya", Name: "Kolya", Lat: 12.8050, Lng: 74.8780},
				{ID: "college", Name: "College", Lat: 12.9017, Lng: 74.9995},
			},
		},
		{
			VehicleID: "Bus7",
			Name:      "Bus 7",
			Stops: []StopConfig{
				{ID: "kolya", Name: "Kolya", Lat: 12.8050, Lng: 74.8780},
				{ID: "kumpala", Name: "Kumpala", Lat: 12.8110, Lng: 74.8690},
				{ID: "ullala", Name: "Ullala", Lat: 12.8050, Lng: 74.8560},
				{ID: "thokkottu", Name: "Thokkottu", Lat: 12.8190, Lng: 74.8590},
				{ID: "kallapu", Name: "Kallapu", Lat: 12.8280, Lng: 74.8600},
				{ID: "jeppinamogaru", Name: "Jeppinamogaru", Lat: 12.8380, Lng: 74.8570},
				{ID: "pumpwell", Name: "Pumpwell", Lat: 12.8700, Lng: 74.8520},
				{ID: "college", Name: "College", Lat: 12.9017, Lng: 74.9995},
			},
		},
	}
}

package config

const (
	defaultPollInterval        = 1.0
	defaultTimezone            = "Asia/Seoul"
	defaultLogDir              = "~/.local/share/sessiond/logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultAPIBind             = "127.0.0.1:8585"
	defaultMQTTHost            = "127.0.0.1"
	defaultMQTTPort            = 1883
	defaultMQTTClientID        = "sessiond"
	defaultTopicPrefix         = "frigate"
	defaultRecorderURL         = "http://127.0.0.1:5000"
	defaultRecorderTimeout     = 30
	defaultExportTimeout       = 300
	defaultExportPollInterval  = 2
	defaultExportBufferSeconds = 2
	defaultInstrumentURL       = "http://127.0.0.1:8180"
	defaultInstrumentTimeout   = 5
	defaultSessionsDataDir     = "~/.local/share/sessiond/sessions"
	defaultExportDir           = "~/.local/share/sessiond/exports"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Daemon: Daemon{
			PollInterval: defaultPollInterval,
			Timezone:     defaultTimezone,
			LogDir:       defaultLogDir,
			LogLevel:     defaultLogLevel,
			LogFormat:    defaultLogFormat,
		},
		API: API{
			Bind: defaultAPIBind,
		},
		MQTT: MQTT{
			Host:        defaultMQTTHost,
			Port:        defaultMQTTPort,
			ClientID:    defaultMQTTClientID,
			TopicPrefix: defaultTopicPrefix,
		},
		Recorder: Recorder{
			URL:                 defaultRecorderURL,
			RequestTimeout:      defaultRecorderTimeout,
			ExportTimeout:       defaultExportTimeout,
			ExportPollInterval:  defaultExportPollInterval,
			ExportBufferSeconds: defaultExportBufferSeconds,
		},
		Instrument: Instrument{
			URL:            defaultInstrumentURL,
			RequestTimeout: defaultInstrumentTimeout,
		},
		Sessions: Sessions{
			DataDir:   defaultSessionsDataDir,
			ExportDir: defaultExportDir,
		},
		Cameras: map[string]string{
			"chamber_0": "pi_cam_0",
			"chamber_1": "pi_cam_1",
		},
	}
}

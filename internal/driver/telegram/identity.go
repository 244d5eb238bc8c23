package telegram

import "namelog/pkg/namelog"

const (
	// DriverType is the configured driver type token for the Telegram runtime.
	DriverType = "telegram"
	// DriverPlatform is the neutral platform produced by the Telegram runtime.
	DriverPlatform namelog.Platform = namelog.PlatformTelegram
)

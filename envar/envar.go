package envar

import "os"

const (
	RgbdConfig   = "RGBD_CONFIG"
	RgbdDiagAddr = "RGBD_DIAG_ADDR"
)

func Getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

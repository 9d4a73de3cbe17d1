// config.go - Haupt-Konfigurationsfunktionen fuer cnocr
//
// Dieses Modul enthaelt:
// - Home: Gibt das cnocr Datenverzeichnis zurueck (CNOCR_HOME)
// - ModelDir: Gibt das Standard-Ausgabeverzeichnis fuer Modelle zurueck
// - NumWorkers: Gibt die Worker-Anzahl fuer das Packen zurueck (CNOCR_NUM_WORKERS)
// - LogLevel: Gibt Log-Level zurueck (CNOCR_DEBUG)
//
// Weitere Konfigurationen sind ausgelagert:
// - config_utils.go: Utility-Funktionen und AsMap/Values
package envconfig

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/memegle/cnocr/version"
)

// Home gibt das cnocr Datenverzeichnis zurueck
// Konfigurierbar via CNOCR_HOME
// Default: $HOME/.cnocr
func Home() string {
	if s := Var("CNOCR_HOME"); s != "" {
		return s
	}

	home, err := os.UserHomeDir()
	if err != nil {
		panic(err)
	}

	return filepath.Join(home, ".cnocr")
}

// ModelDir gibt das Standard-Ausgabeverzeichnis fuer trainierte Modelle zurueck
// Entspricht <Home>/<ModelVersion>
func ModelDir() string {
	return filepath.Join(Home(), version.ModelVersion)
}

// NumWorkers gibt die Worker-Anzahl fuer parallele Bild-Kodierung zurueck
// Konfigurierbar via CNOCR_NUM_WORKERS
// Default: Anzahl der CPUs; 0 aus der Umgebung faellt auf den Default zurueck
// (errgroup.SetLimit(0) wuerde jeden Worker blockieren)
func NumWorkers() uint {
	if n := Uint("CNOCR_NUM_WORKERS", uint(runtime.NumCPU()))(); n > 0 {
		return n
	}
	return uint(runtime.NumCPU())
}

// LogLevel gibt das Log-Level zurueck
// Konfigurierbar via CNOCR_DEBUG (1 = Debug, groessere Zahlen = feiner)
func LogLevel() slog.Level {
	level := slog.LevelInfo
	if s := Var("CNOCR_DEBUG"); s != "" {
		if b, _ := strconv.ParseBool(s); b {
			level = slog.LevelDebug
		} else if i, _ := strconv.ParseInt(s, 10, 64); i != 0 {
			level = slog.Level(i * -4)
		}
	}

	return level
}

// Var gibt eine Environment-Variable zurueck
// Entfernt fuehrende/trailing Quotes und Leerzeichen
func Var(key string) string {
	return strings.Trim(strings.TrimSpace(os.Getenv(key)), "\"'")
}

// version.go - Paket- und Modellversion
// Ersetzt __version__.py und den MODEL_VERSION Eintrag aus consts
package version

// Version ist die Version des cnocr Pakets
var Version = "1.2.0"

// ModelVersion ist der Versions-Tag in Checkpoint-Dateinamen
// (cnocr-v<ModelVersion>-<model name>-NNNN.params)
var ModelVersion = "1.2.0"

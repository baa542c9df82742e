// Package gateway holds the domain model of the audio-transformation
// pipeline: the URL grammar, HMAC signing, the typed parameter record with
// its canonical serialization, fingerprinting, and the external-tool
// argument builder. It has no I/O; every other internal package depends on
// it and not the other way around.
package gateway

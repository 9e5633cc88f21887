package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the root of every IceTray topic.
const TopicPrefix = "icetray"

// Artifact kinds published per IceCube.
const (
	ArtifactDB       = "db"
	ArtifactProto    = "proto"
	ArtifactDocument = "document"
)

// Topics provides builders for IceTray MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Artifact("RPi1", mqtt.ArtifactProto)
//	// Returns: "icetray/artifact/RPi1/proto"
type Topics struct{}

// BuildRequest is where clients publish IceCube documents to be built.
//
// Example: icetray/request/build
func (Topics) BuildRequest() string {
	return TopicPrefix + "/request/build"
}

// BuildResponse carries the outcome of a build request for one cube.
//
// Example: icetray/response/build/RPi1
func (Topics) BuildResponse(name string) string {
	return fmt.Sprintf("%s/response/build/%s", TopicPrefix, name)
}

// Artifact is the retained topic holding one generated artifact of a cube.
//
// Example: icetray/artifact/RPi1/db
func (Topics) Artifact(name, kind string) string {
	return fmt.Sprintf("%s/artifact/%s/%s", TopicPrefix, name, kind)
}

// AllArtifacts matches every artifact of every cube.
//
// Pattern: icetray/artifact/+/+
func (Topics) AllArtifacts() string {
	return TopicPrefix + "/artifact/+/+"
}

// SystemStatus carries one client's online/offline status (and its LWT).
// The server and each agent have their own topic.
//
// Example: icetray/system/status/icetray
func (Topics) SystemStatus(clientID string) string {
	return fmt.Sprintf("%s/system/status/%s", TopicPrefix, clientID)
}

// ArtifactsOf matches every artifact of one cube.
//
// Pattern: icetray/artifact/RPi1/+
func (t Topics) ArtifactsOf(name string) string {
	return t.Artifact(name, "+")
}

// ParseArtifact splits an artifact topic into cube name and kind.
func (Topics) ParseArtifact(topic string) (name, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefix+"/artifact/")
	if !found {
		return "", "", false
	}
	name, kind, found = strings.Cut(rest, "/")
	if !found || name == "" || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	return name, kind, true
}

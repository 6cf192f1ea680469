package gyre

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// Codec turns the raw bytes a Watcher emits into the payload type a
// FromWatcher feedback's event constructor expects. The two shipped codecs
// cover JSON and YAML; adapters for other formats implement this interface
// alongside their Watcher.
type Codec interface {
	// Unmarshal deserializes one watcher payload into v.
	Unmarshal(data []byte, v any) error

	// ContentType names the payload format, for signals and debugging.
	ContentType() string
}

// JSONCodec decodes watcher payloads with encoding/json.
type JSONCodec struct{}

func (JSONCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

func (JSONCodec) ContentType() string { return "application/json" }

// YAMLCodec decodes watcher payloads with gopkg.in/yaml.v3.
type YAMLCodec struct{}

func (YAMLCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

func (YAMLCodec) ContentType() string { return "application/x-yaml" }

var (
	_ Codec = JSONCodec{}
	_ Codec = YAMLCodec{}
)

package envs

import (
	"encoding/gob"
	"os"

	"github.com/Godsmith/hatch/pkg/project"
)

func init() {
	gob.Register(Map{})
	gob.Register(Environment{})
	gob.Register(project.Dependency{})
}

// WriteCache stores a resolved environment set together with the config
// digest that produced it.
func WriteCache(file, digest string, m Map) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	encoder := gob.NewEncoder(handle)
	err = encoder.Encode(digest)
	if err != nil {
		return err
	}

	return encoder.Encode(m)
}

// ReadCache loads a cached environment set. Callers have to compare the
// returned digest against the current config and discard stale results.
func ReadCache(file string) (string, Map, error) {
	handle, err := os.Open(file)
	if err != nil {
		return "", nil, err
	}
	defer handle.Close()

	decoder := gob.NewDecoder(handle)

	var digest string
	err = decoder.Decode(&digest)
	if err != nil {
		return "", nil, err
	}

	var result Map
	err = decoder.Decode(&result)
	if err != nil {
		return digest, nil, err
	}

	return digest, result, nil
}

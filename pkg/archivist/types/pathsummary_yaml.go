// Copyright 2025 Oppie Thunder Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import "fmt"

// pathSummaryYAML is the on-disk tagged-union representation of a
// PathSummary, mirroring the original keevalbak FileSummary/DirSummary
// toYamlData()/fromYamlData() shape.
type pathSummaryYAML struct {
	Type    string `yaml:"type"`
	Path    string `yaml:"path"`
	Hash    string `yaml:"hash,omitempty"`
	Written bool   `yaml:"written,omitempty"`
}

// MarshalYAML implements yaml.Marshaler.
func (p PathSummary) MarshalYAML() (interface{}, error) {
	switch p.Kind {
	case KindFile:
		return pathSummaryYAML{
			Type:    "file",
			Path:    p.RelPath,
			Hash:    string(p.SHA1Hex),
			Written: p.Written,
		}, nil
	case KindDir:
		return pathSummaryYAML{
			Type: "dir",
			Path: p.RelPath,
		}, nil
	default:
		return nil, fmt.Errorf("unknown path summary kind: %v", p.Kind)
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (p *PathSummary) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw pathSummaryYAML
	if err := unmarshal(&raw); err != nil {
		return err
	}
	switch raw.Type {
	case "file":
		*p = PathSummary{Kind: KindFile, RelPath: raw.Path, SHA1Hex: ContentHash(raw.Hash), Written: raw.Written}
	case "dir":
		*p = PathSummary{Kind: KindDir, RelPath: raw.Path}
	default:
		return fmt.Errorf("unknown path summary type: %q", raw.Type)
	}
	return nil
}

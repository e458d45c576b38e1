// Copyright 2025 Arcade Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"sigs.k8s.io/yaml"
)

// printOut writes v in the format selected by --output.
func printOut(w io.Writer, v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	switch output {
	case "", "json":
		_, err = fmt.Fprintln(w, string(raw))
	case "yaml", "yml":
		var y []byte
		y, err = yaml.JSONToYAML(raw)
		if err == nil {
			_, err = w.Write(y)
		}
	default:
		err = fmt.Errorf("unsupported output format %q", output)
	}
	return err
}

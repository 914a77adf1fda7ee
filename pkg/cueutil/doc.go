// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides shared CUE parsing utilities.
//
// Both the project recipe (berth.cue) and the user configuration (config.cue)
// follow the same flow:
//
//  1. Compile the embedded schema
//  2. Compile user data and unify it with the schema definition
//  3. Validate and decode to a Go struct
//
// # Usage
//
//	//go:embed recipe_schema.cue
//	var schema []byte
//
//	result, err := cueutil.ParseAndDecode[Recipe](
//	    schema,
//	    data,
//	    "#Recipe",
//	    cueutil.WithFilename("berth.cue"),
//	)
//	if err != nil {
//	    return nil, err // Error includes the CUE path of the offending field
//	}
//	return result.Value, nil
package cueutil

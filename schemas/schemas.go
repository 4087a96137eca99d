// Package schemas embeds the JSON Schemas for scaffold documents and domain
// configuration files.
package schemas

import _ "embed"

//go:embed scaffold.schema.json
var ScaffoldV1Schema []byte

//go:embed domain.schema.json
var DomainV1Schema []byte

// Package normalize reads test case data from YAML files or Excel workbooks
// and produces canonical cases.Module values.
//
// Each module is a directory under the data root. Both sources yield the same
// case model, so a module can move between formats without changing how it
// runs; Compare reports any case that normalizes differently. A case that
// fails validation is excluded with a *cases.DataFormatError while the rest
// of its module still loads.
package normalize

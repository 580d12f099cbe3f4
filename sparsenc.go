/*
Links:
	https://tools.ietf.org/html/rfc6330
	https://en.wikipedia.org/wiki/Random_linear_network_coding
*/

// Package sparsenc ties together params, gf, precode, plan, packet,
// encoder, recoder and decoder into the sparse random linear network
// coding engine's top-level API: build an encoder against a source
// buffer, recode its output through a fixed-size buffer, and decode it
// back with any of the GG, BD, CBD, OA or PP decoder variants.
package sparsenc

import (
	"github.com/sparsenc/sparsenc-go/decoder"
	"github.com/sparsenc/sparsenc-go/encoder"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
	"github.com/sparsenc/sparsenc-go/recoder"
)

// Params is the session configuration shared by every component below.
type Params = params.Params

// CodeType selects how packet ids are assigned to subgenerations.
type CodeType = params.CodeType

// Recognised code types.
const (
	RAND     = params.RAND
	BAND     = params.BAND
	WINDWRAP = params.WINDWRAP
	BATS     = params.BATS
)

// DecoderKind selects which decoder variant CreateDecoder builds.
type DecoderKind = decoder.Kind

// Recognised decoder kinds.
const (
	GG  = decoder.GG
	BD  = decoder.BD
	CBD = decoder.CBD
	OA  = decoder.OA
	PP  = decoder.PP
)

// NewParams validates raw and fills in its derived fields (spec.md §6.1
// create_params).
func NewParams(raw Params) (*Params, error) {
	return params.New(raw)
}

// CreateEncoder builds an encoder over buf under p (spec.md §6.1
// create_encoder).
func CreateEncoder(buf []byte, p *Params) (*encoder.Encoder, error) {
	return encoder.Create(buf, p)
}

// CreateBuffer builds a recoder buffer with room for ringSize packets per
// subgeneration, sharing the same deterministic subgeneration plan an
// encoder built from p would use (spec.md §6.1
// create_buffer). RAND, BAND and WINDWRAP sessions use this buffer; BATS
// sessions use CreateBATSBuffer instead.
func CreateBuffer(p *Params, ringSize int) (*recoder.Buffer, error) {
	pl, err := plan.Build(p)
	if err != nil {
		return nil, err
	}
	return recoder.NewBuffer(p, pl, ringSize)
}

// CreateBATSBuffer builds a BATS recoder buffer with room for bufsize
// packets spanning all batches (spec.md §6.1, §4.6).
func CreateBATSBuffer(p *Params, bufsize int) (*recoder.BATSBuffer, error) {
	return recoder.NewBATSBuffer(p, bufsize)
}

// CreateDecoder builds the decoder variant named by kind, deriving the
// same subgeneration plan and precode graph from p.Seed that the sending
// side used (spec.md §6.1 create_decoder).
func CreateDecoder(p *Params, kind DecoderKind) (decoder.Decoder, error) {
	pl, err := plan.Build(p)
	if err != nil {
		return nil, err
	}
	g, err := precode.Build(p)
	if err != nil {
		return nil, err
	}
	return decoder.New(p, pl, g, kind)
}

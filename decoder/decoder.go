package decoder

import (
	"github.com/mewkiz/pkg/errutil"
	"github.com/sparsenc/sparsenc-go/params"
	"github.com/sparsenc/sparsenc-go/plan"
	"github.com/sparsenc/sparsenc-go/precode"
)

// New builds the decoder variant named by kind (spec.md §6.1
// create_decoder). pl and g must be the same plan and precode graph the
// sending side used, both of which a receiver can regenerate locally from
// p.Seed without either ever crossing the wire.
func New(p *params.Params, pl *plan.Plan, g *precode.Graph, kind Kind) (Decoder, error) {
	switch kind {
	case GG:
		return NewGG(p, pl, g)
	case BD:
		return NewBD(p, pl, g)
	case CBD:
		return NewCBD(p, pl, g)
	case OA:
		return NewOA(p, pl, g)
	case PP:
		return NewPP(p, pl, g)
	default:
		return nil, errutil.Newf("decoder: unrecognised kind %v", kind)
	}
}

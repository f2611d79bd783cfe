package builtin

import "github.com/AltairaLabs/remotemedia/runtime/node"

// RegisterAll registers every builtin node type into r. Deployments that
// want only a subset of builtins can register the corresponding New*
// factories of this package directly instead of calling this.
func RegisterAll(r *node.Registry) error {
	registrations := []struct {
		desc    node.Descriptor
		factory node.Factory
	}{
		{NewCalculator().Describe(), NewCalculator},
		{NewPassThrough().Describe(), NewPassThrough},
		{NewResample().Describe(), NewResample},
		{NewVAD().Describe(), NewVAD},
		{NewSegmenter().Describe(), NewSegmenter},
		{NewImageResize().Describe(), NewImageResize},
		{NewTranscode().Describe(), NewTranscode},
	}

	for _, reg := range registrations {
		if err := r.Register(reg.desc, reg.factory); err != nil {
			return err
		}
	}
	return nil
}

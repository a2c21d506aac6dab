package ar

import (
	"fmt"

	"github.com/example/musicdaemon/internal/onnxsession"
)

// kvCache threads per-layer self- and cross-attention key/value tensors
// across decode steps, scoped to a single generation per spec §9 ("KV cache
// lifetime is scoped to a single generation"). Tensor names follow the
// `past_key_values.{layer}.{decoder|encoder}.{key|value}` /
// `present.{layer}.{decoder|encoder}.{key|value}` convention common to
// HF-optimum ONNX exports of encoder/decoder transformers, which is what
// the AR model's decoder_first_step/decoder_with_past graphs were exported
// with.
type kvCache struct {
	tensors map[string]*onnxsession.Tensor
}

func newKVCache() *kvCache {
	return &kvCache{tensors: make(map[string]*onnxsession.Tensor)}
}

// pastInputs returns the decoder_with_past graph's past-KV inputs, built
// from the previous step's "present" outputs.
func (c *kvCache) pastInputs(numLayers int) map[string]*onnxsession.Tensor {
	out := make(map[string]*onnxsession.Tensor, numLayers*4)

	for layer := range numLayers {
		for _, attn := range []string{"decoder", "encoder"} {
			for _, part := range []string{"key", "value"} {
				name := pastName(layer, attn, part)
				if t, ok := c.tensors[name]; ok {
					out[name] = t
				}
			}
		}
	}

	return out
}

// absorbPresent copies a decode step's "present.*" outputs into the cache
// under the matching "past_key_values.*" name, so the next step's
// pastInputs picks them up. Cross-attention ("encoder") KV is computed once
// on the first step and is simply re-copied (unchanged) on later steps if
// the with-past graph re-emits it, otherwise it is left untouched.
func (c *kvCache) absorbPresent(outputs map[string]*onnxsession.Tensor, numLayers int) {
	for layer := range numLayers {
		for _, attn := range []string{"decoder", "encoder"} {
			for _, part := range []string{"key", "value"} {
				presentName := presentName(layer, attn, part)

				t, ok := outputs[presentName]
				if !ok {
					continue
				}

				c.tensors[pastName(layer, attn, part)] = t
			}
		}
	}
}

func pastName(layer int, attn, part string) string {
	return fmt.Sprintf("past_key_values.%d.%s.%s", layer, attn, part)
}

func presentName(layer int, attn, part string) string {
	return fmt.Sprintf("present.%d.%s.%s", layer, attn, part)
}

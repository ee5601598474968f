package document

import (
	"fmt"

	"github.com/go-viper/mapstructure/v2"
)

// Codec converts entities to documents and back using their json struct tags.
// Decoding is weakly typed: a document whose id came back as a string or whose integers
// came back as floats still maps onto the entity.
type Codec[T any] struct{}

// Encode flattens entity into a Document.
func (Codec[T]) Encode(entity T) (Document, error) {
	doc := Document{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "json",
		Result:  &doc,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(entity); err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return doc, nil
}

// Decode maps doc onto a new entity. Unknown fields are ignored.
func (Codec[T]) Decode(doc Document) (T, error) {
	var entity T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &entity,
	})
	if err != nil {
		return entity, err
	}
	if err := dec.Decode(map[string]any(doc)); err != nil {
		return entity, fmt.Errorf("failed to decode document: %w", err)
	}
	return entity, nil
}

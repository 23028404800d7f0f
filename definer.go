package hotswap

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// Definer creates beans for classes that have none and refreshes the metadata
// of existing beans in place. Callers serialise calls per class.
type Definer struct {
	logger *zap.Logger
}

func NewDefiner(logger *zap.Logger) *Definer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Definer{logger: logger}
}

// DefineOrUpdate defines a bean for class when reg has none, otherwise
// refreshes every existing bean of the class. It returns the defined or first
// refreshed bean and whether it was newly defined.
func (d *Definer) DefineOrUpdate(ctx context.Context, reg Registry, class Class) (*Bean, bool, error) {
	if reg == nil {
		return nil, false, ErrRegistryIsNil
	}
	beans := reg.BeansForClass(class.ID)
	if len(beans) == 0 {
		b, err := d.Define(ctx, reg, class)
		if err != nil {
			return nil, false, err
		}
		return b, true, nil
	}
	for _, b := range beans {
		if err := d.Refresh(ctx, reg, b, class); err != nil {
			return b, false, err
		}
	}
	return beans[0], false, nil
}

// Define registers a new bean built from the current structure of class.
func (d *Definer) Define(ctx context.Context, reg Registry, class Class) (*Bean, error) {
	if err := validateClass(class); err != nil {
		return nil, err
	}
	md, err := reg.BuildMetadata(ctx, class)
	if err != nil {
		return nil, fmt.Errorf("build metadata for %s: %w", class.ID, err)
	}
	if md.Kind != KindManaged {
		return nil, fmt.Errorf("define %s as %s bean: %w", class.ID, md.Kind, ErrNotManagedBean)
	}
	producer, err := reg.NewProducer(ctx, class, md)
	if err != nil {
		return nil, fmt.Errorf("create producer for %s: %w", class.ID, err)
	}

	b := NewBean(beanID(class, md), class, md, producer)
	if err := reg.AddBean(b); err != nil {
		return nil, fmt.Errorf("add bean for %s: %w", class.ID, err)
	}
	d.logger.Debug("bean defined", zap.String("bean", b.ID()), zap.String("class", class.ID.String()))
	return b, nil
}

// Refresh rebuilds metadata and producer of b from class. Everything is built
// before b is touched, so a failure leaves b exactly as it was.
func (d *Definer) Refresh(ctx context.Context, reg Registry, b *Bean, class Class) error {
	if err := validateClass(class); err != nil {
		return err
	}
	md, err := reg.BuildMetadata(ctx, class)
	if err != nil {
		return fmt.Errorf("build metadata for %s: %w", class.ID, err)
	}
	producer, err := reg.NewProducer(ctx, class, md)
	if err != nil {
		return fmt.Errorf("create producer for %s: %w", class.ID, err)
	}
	b.refresh(class, md, producer)
	d.logger.Debug("bean metadata refreshed", zap.String("bean", b.ID()), zap.String("class", class.ID.String()))
	return nil
}

func validateClass(class Class) error {
	if class.Type == nil {
		return ErrClassTypeIsNil
	}
	if class.StructType() == nil {
		return fmt.Errorf("%s: %w", class.ID, ErrInvalidClassType)
	}
	return nil
}

func beanID(class Class, md Metadata) string {
	if md.Name != emptyString {
		return strings.ToLower(md.Name)
	}
	name := class.ID.Name
	if i := strings.LastIndexAny(name, "./"); i >= 0 {
		name = name[i+1:]
	}
	return strings.ToLower(name)
}

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	apperrors "pricewatch/internal/errors"
	appvalidator "pricewatch/internal/validator"
)

// ProductsFile is the tracked product hierarchy.
//
//	products:
//	  - name: Pañales Etapa 5
//	    alias: diapers
//	    presentations:
//	      - size: Size 5
//	        unit_count: 56
//	        stores:
//	          - name: Alkosto
//	            url: https://www.alkosto.com/...
type ProductsFile struct {
	Products []ProductConfig `yaml:"products" validate:"required,min=1,dive"`
}

// ProductConfig is one product entry.
type ProductConfig struct {
	Name          string               `yaml:"name" validate:"required"`
	Alias         string               `yaml:"alias" validate:"required,alias"`
	Presentations []PresentationConfig `yaml:"presentations" validate:"dive"`
}

// PresentationConfig is one packaged size of a product.
type PresentationConfig struct {
	Size      string        `yaml:"size" validate:"required"`
	UnitCount int           `yaml:"unit_count" validate:"required,gt=0"`
	Stores    []StoreConfig `yaml:"stores" validate:"dive"`
}

// StoreConfig is one retailer URL for a presentation.
type StoreConfig struct {
	Name string `yaml:"name" validate:"required"`
	URL  string `yaml:"url" validate:"required,store_url"`
}

// StoreCount returns the number of store URLs in the file.
func (f *ProductsFile) StoreCount() int {
	n := 0
	for _, p := range f.Products {
		for _, pr := range p.Presentations {
			n += len(pr.Stores)
		}
	}
	return n
}

// LoadProducts reads and validates the products file at path.
// Any malformed entry fails the whole load with ErrInvalidConfig.
func LoadProducts(path string) (*ProductsFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidConfig, fmt.Errorf("read %s: %w", path, err))
	}
	return ParseProducts(bytes.NewReader(data))
}

// ParseProducts decodes and validates a products document.
func ParseProducts(r io.Reader) (*ProductsFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f ProductsFile
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, apperrors.WithMessage(apperrors.ErrInvalidConfig, "products file is empty")
		}
		return nil, apperrors.Wrap(apperrors.ErrInvalidConfig, fmt.Errorf("decode products: %w", err))
	}

	normalize(&f)

	if err := appvalidator.New().Struct(&f); err != nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidConfig, describeValidation(err))
	}
	if err := checkUnique(&f); err != nil {
		return nil, err
	}
	return &f, nil
}

func normalize(f *ProductsFile) {
	for i := range f.Products {
		p := &f.Products[i]
		p.Name = strings.TrimSpace(p.Name)
		p.Alias = strings.TrimSpace(p.Alias)
		for j := range p.Presentations {
			pr := &p.Presentations[j]
			pr.Size = strings.TrimSpace(pr.Size)
			for k := range pr.Stores {
				s := &pr.Stores[k]
				s.Name = strings.TrimSpace(s.Name)
				s.URL = strings.TrimSpace(s.URL)
			}
		}
	}
}

// checkUnique rejects duplicate aliases, duplicate sizes within a product,
// and URLs listed under more than one presentation.
func checkUnique(f *ProductsFile) error {
	aliases := make(map[string]bool)
	urls := make(map[string]string)
	for _, p := range f.Products {
		if aliases[p.Alias] {
			return apperrors.WithMessage(apperrors.ErrInvalidConfig, fmt.Sprintf("duplicate product alias %q", p.Alias))
		}
		aliases[p.Alias] = true

		sizes := make(map[string]bool)
		for _, pr := range p.Presentations {
			if sizes[pr.Size] {
				return apperrors.WithMessage(apperrors.ErrInvalidConfig, fmt.Sprintf("duplicate size %q for product %q", pr.Size, p.Alias))
			}
			sizes[pr.Size] = true

			owner := p.Alias + "/" + pr.Size
			for _, s := range pr.Stores {
				if prev, ok := urls[s.URL]; ok && prev != owner {
					return apperrors.WithMessage(apperrors.ErrInvalidConfig, fmt.Sprintf("url %s is listed under both %s and %s", s.URL, prev, owner))
				}
				urls[s.URL] = owner
			}
		}
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid products file: " + err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %q", strings.TrimPrefix(fe.Namespace(), "ProductsFile."), fe.Tag()))
	}
	return "invalid products file: " + strings.Join(parts, "; ")
}

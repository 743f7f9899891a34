package jolokia

import (
	"context"
	"encoding/xml"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/yurykabanov/jfrkeeper/pkg/domain"
)

const customTemplateExt = ".jfc"

var ErrInvalidEventSpecifier = errors.New("invalid event specifier")

// configurationInfo mirrors jdk.management.jfr.ConfigurationInfo.
type configurationInfo struct {
	Name        string `json:"name"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Provider    string `json:"provider"`
}

type jfcHeader struct {
	XMLName     xml.Name `xml:"configuration"`
	Label       string   `xml:"label,attr"`
	Description string   `xml:"description,attr"`
}

// ParseEventSpecifier parses "template=<name>[,type=<TARGET|CUSTOM>]".
// An empty type means that any template type is acceptable.
func (c *Client) ParseEventSpecifier(specifier string) (string, domain.TemplateType, error) {
	var (
		name string
		typ  domain.TemplateType
	)

	for _, part := range strings.Split(specifier, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return "", "", errors.Wrapf(ErrInvalidEventSpecifier, "%q", specifier)
		}

		switch kv[0] {
		case "template":
			name = kv[1]
		case "type":
			t, ok := domain.ParseTemplateType(kv[1])
			if !ok {
				return "", "", errors.Wrapf(ErrInvalidEventSpecifier, "unknown template type %q", kv[1])
			}
			typ = t
		default:
			return "", "", errors.Wrapf(ErrInvalidEventSpecifier, "unknown key %q", kv[0])
		}
	}

	if name == "" {
		return "", "", errors.Wrapf(ErrInvalidEventSpecifier, "%q names no template", specifier)
	}

	return name, typ, nil
}

// GetPreferredTemplate resolves the named template. Without an explicit type
// a CUSTOM template shadows a TARGET template of the same name.
func (c *Client) GetPreferredTemplate(ctx context.Context, target domain.Target, name string, typ domain.TemplateType) (domain.Template, error) {
	if typ == "" || typ == domain.TemplateTypeCustom {
		template, err := c.customTemplate(name)
		if err == nil {
			return template, nil
		}
		if typ == domain.TemplateTypeCustom || errors.Cause(err) != domain.ErrTemplateNotFound {
			return domain.Template{}, err
		}
	}

	configurations, err := c.targetConfigurations(ctx, target)
	if err != nil {
		return domain.Template{}, err
	}

	for _, conf := range configurations {
		if conf.Name == name {
			return domain.Template{
				Name:        conf.Name,
				Label:       conf.Label,
				Description: conf.Description,
				Type:        domain.TemplateTypeTarget,
			}, nil
		}
	}

	return domain.Template{}, errors.Wrapf(domain.ErrTemplateNotFound, "%q on %s", name, target.ConnectUrl)
}

// Templates lists the templates usable on the target, custom ones first.
func (c *Client) Templates(ctx context.Context, target domain.Target) ([]domain.Template, error) {
	custom, err := c.customTemplates()
	if err != nil {
		return nil, err
	}

	configurations, err := c.targetConfigurations(ctx, target)
	if err != nil {
		return nil, err
	}

	result := custom
	for _, conf := range configurations {
		result = append(result, domain.Template{
			Name:        conf.Name,
			Label:       conf.Label,
			Description: conf.Description,
			Type:        domain.TemplateTypeTarget,
		})
	}

	return result, nil
}

func (c *Client) targetConfigurations(ctx context.Context, target domain.Target) ([]configurationInfo, error) {
	var configurations []configurationInfo

	err := c.read(ctx, target.ConnectUrl, flightRecorderMBean, "Configurations", &configurations)
	if err != nil {
		return nil, err
	}

	return configurations, nil
}

func (c *Client) customTemplate(name string) (domain.Template, error) {
	if c.config.TemplatesDirectory == "" || strings.ContainsAny(name, `/\`) {
		return domain.Template{}, domain.ErrTemplateNotFound
	}

	path := filepath.Join(c.config.TemplatesDirectory, name+customTemplateExt)

	contents, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) {
		return domain.Template{}, domain.ErrTemplateNotFound
	}
	if err != nil {
		return domain.Template{}, errors.Wrapf(err, "Unable to read template %s", path)
	}

	var header jfcHeader
	if err := xml.Unmarshal(contents, &header); err != nil {
		return domain.Template{}, errors.Wrapf(err, "Malformed template %s", path)
	}

	return domain.Template{
		Name:        name,
		Label:       header.Label,
		Description: header.Description,
		Type:        domain.TemplateTypeCustom,
		Contents:    string(contents),
	}, nil
}

func (c *Client) customTemplates() ([]domain.Template, error) {
	if c.config.TemplatesDirectory == "" {
		return nil, nil
	}

	files, err := ioutil.ReadDir(c.config.TemplatesDirectory)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "Unable to list custom templates")
	}

	var result []domain.Template
	for _, f := range files {
		if f.IsDir() || filepath.Ext(f.Name()) != customTemplateExt {
			continue
		}

		template, err := c.customTemplate(strings.TrimSuffix(f.Name(), customTemplateExt))
		if err != nil {
			c.logger.WithError(err).WithField("file", f.Name()).Warn("Skipping unreadable custom template")
			continue
		}
		result = append(result, template)
	}

	sort.Slice(result, func(i, k int) bool { return result[i].Name < result[k].Name })

	return result, nil
}

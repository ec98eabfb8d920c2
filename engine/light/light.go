package light

import (
	"fmt"
	"math"
	"strings"

	"github.com/Carmen-Shannon/oxypipe/common"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position
	// and attenuates with distance up to a configurable range.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone along a direction,
	// controlled by inner and outer cone angles.
	LightTypeSpot

	// LightTypeAmbient lights every surface uniformly.
	LightTypeAmbient

	// LightTypeHemisphere blends a sky color and a ground color by surface orientation.
	LightTypeHemisphere

	// LightTypeRectArea emits from a rectangular area.
	LightTypeRectArea
)

var lightTypeNames = [...]string{"directional", "point", "spot", "ambient", "hemisphere", "rectarea"}

// String returns the lower-case name used in files (e.g. "spot").
func (t LightType) String() string {
	if int(t) < len(lightTypeNames) {
		return lightTypeNames[t]
	}
	return fmt.Sprintf("LightType(%d)", int(t))
}

// ParseLightType converts a light type name back to a LightType. Matching ignores case and the
// "Light" suffix used by some formats ("PointLight").
//
// Parameters:
//   - s: the light type name
//
// Returns:
//   - LightType: the parsed type
//   - error: error if the name is unknown
func ParseLightType(s string) (LightType, error) {
	s = strings.TrimSuffix(strings.ToLower(s), "light")
	for i, n := range lightTypeNames {
		if n == s {
			return LightType(i), nil
		}
	}
	return 0, fmt.Errorf("unknown light type %q", s)
}

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	name         string
	lightType    LightType
	direction    [3]float32
	color        [3]float32
	intensity    float32
	lightRange   float32
	innerCone    float32 // radians
	outerCone    float32 // radians
	enabled      bool
	castsShadows bool
}

// Light defines the interface for the framework light wrapper. All light types share this interface;
// type-specific properties (e.g. cone angles for spot lights) return zero values when not applicable.
type Light interface {
	// Name returns the light name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: the light type
	Type() LightType

	// Direction returns the normalized direction of the light in its node's local space.
	//
	// Returns:
	//   - [3]float32: normalized direction as (x, y, z)
	Direction() [3]float32

	// Color returns the RGB color of the light.
	//
	// Returns:
	//   - [3]float32: color as (r, g, b)
	Color() [3]float32

	// Intensity returns the scalar intensity multiplier for the light.
	//
	// Returns:
	//   - float32: the intensity value
	Intensity() float32

	// Range returns the attenuation range. Zero means infinite.
	//
	// Returns:
	//   - float32: the range
	Range() float32

	// InnerCone returns the inner cone angle in radians.
	//
	// Returns:
	//   - float32: the inner cone angle
	InnerCone() float32

	// OuterCone returns the outer cone angle in radians.
	//
	// Returns:
	//   - float32: the outer cone angle
	OuterCone() float32

	// Enabled returns whether the light contributes to the scene.
	//
	// Returns:
	//   - bool: true if enabled
	Enabled() bool

	// CastsShadows returns whether the light casts shadows.
	//
	// Returns:
	//   - bool: true if the light casts shadows
	CastsShadows() bool

	// SetColor sets the RGB color.
	//
	// Parameters:
	//   - r, g, b: the color components
	SetColor(r, g, b float32)

	// SetIntensity sets the intensity multiplier.
	//
	// Parameters:
	//   - intensity: the intensity
	SetIntensity(intensity float32)

	// SetEnabled sets whether the light contributes to the scene.
	//
	// Parameters:
	//   - enabled: true to enable
	SetEnabled(enabled bool)

	// SetCastsShadows sets whether the light casts shadows.
	//
	// Parameters:
	//   - castsShadows: true to cast shadows
	SetCastsShadows(castsShadows bool)

	// ToImported converts the light back to loader-native parameters for exporting.
	//
	// Returns:
	//   - *common.ImportedLight: the light parameters
	ToImported() *common.ImportedLight
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the given type with white color and unit intensity.
//
// Parameters:
//   - lightType: the kind of light
//   - opts: functional options to configure the light
//
// Returns:
//   - Light: the newly created light
func NewLight(lightType LightType, opts ...LightBuilderOption) Light {
	l := &lightImpl{
		lightType: lightType,
		direction: [3]float32{0, 0, -1},
		color:     [3]float32{1, 1, 1},
		intensity: 1,
		outerCone: math.Pi / 4,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// FromImported upgrades loader-native light parameters to a Light.
//
// Parameters:
//   - src: the imported light
//
// Returns:
//   - Light: the framework light
//   - error: error if the light type is unknown
func FromImported(src *common.ImportedLight) (Light, error) {
	if src == nil {
		return nil, fmt.Errorf("light is nil")
	}
	t, err := ParseLightType(src.Type)
	if err != nil {
		return nil, err
	}
	opts := []LightBuilderOption{
		WithName(src.Name),
		WithColor(src.Color[0], src.Color[1], src.Color[2]),
		WithIntensity(src.Intensity),
		WithRange(src.Range),
	}
	if t == LightTypeSpot {
		opts = append(opts, WithSpotCone(src.InnerConeAngle, src.OuterConeAngle))
	}
	return NewLight(t, opts...), nil
}

func (l *lightImpl) Name() string {
	return l.name
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) Direction() [3]float32 {
	return l.direction
}

func (l *lightImpl) Color() [3]float32 {
	return l.color
}

func (l *lightImpl) Intensity() float32 {
	return l.intensity
}

func (l *lightImpl) Range() float32 {
	return l.lightRange
}

func (l *lightImpl) InnerCone() float32 {
	return l.innerCone
}

func (l *lightImpl) OuterCone() float32 {
	return l.outerCone
}

func (l *lightImpl) Enabled() bool {
	return l.enabled
}

func (l *lightImpl) CastsShadows() bool {
	return l.castsShadows
}

func (l *lightImpl) SetColor(r, g, b float32) {
	l.color = [3]float32{r, g, b}
}

func (l *lightImpl) SetIntensity(intensity float32) {
	l.intensity = intensity
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.enabled = enabled
}

func (l *lightImpl) SetCastsShadows(castsShadows bool) {
	l.castsShadows = castsShadows
}

func (l *lightImpl) ToImported() *common.ImportedLight {
	out := &common.ImportedLight{
		Name:      l.name,
		Type:      l.lightType.String(),
		Color:     l.color,
		Intensity: l.intensity,
		Range:     l.lightRange,
	}
	if l.lightType == LightTypeSpot {
		out.InnerConeAngle = l.innerCone
		out.OuterConeAngle = l.outerCone
	}
	return out
}

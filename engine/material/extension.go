package material

// Extension is a plugin applied to every compatible registered material.
type Extension struct {
	// Name identifies the extension in logs.
	Name string

	// IsCompatible limits the extension to some materials. Nil means every material.
	IsCompatible func(m Material) bool

	// OnRegister is called when the extension is applied to a material.
	OnRegister func(m Material)

	// OnUnregister is called when the extension is removed from a material.
	OnUnregister func(m Material)
}

func (e *Extension) compatible(m Material) bool {
	return e.IsCompatible == nil || e.IsCompatible(m)
}

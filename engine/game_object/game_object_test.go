package game_object

import (
	"testing"

	"github.com/Carmen-Shannon/oxypipe/common"
	"github.com/Carmen-Shannon/oxypipe/engine/material"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGameObject_AddReparents(t *testing.T) {
	a := NewGameObject(WithName("a"))
	b := NewGameObject(WithName("b"))
	child := NewGameObject(WithName("child"))

	a.Add(child)
	require.Same(t, a, child.Parent())
	b.Add(child)

	assert.Empty(t, a.Children())
	assert.Same(t, b, child.Parent())
	assert.Equal(t, 0, b.IndexOf(child))
}

func TestGameObject_InsertAndRemoveFromParent(t *testing.T) {
	root := NewGameObject()
	first := NewGameObject(WithName("first"))
	second := NewGameObject(WithName("second"))
	middle := NewGameObject(WithName("middle"))
	root.Add(first, second)
	root.Insert(1, middle)

	names := []string{}
	for _, c := range root.Children() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"first", "middle", "second"}, names)

	assert.Equal(t, 1, middle.RemoveFromParent())
	assert.Nil(t, middle.Parent())
	assert.Equal(t, -1, middle.RemoveFromParent())
	assert.False(t, root.Remove(middle))
}

func TestGameObject_TraverseSkipsSubtree(t *testing.T) {
	leaf := NewGameObject(WithName("leaf"))
	skipped := NewGameObject(WithName("skipped"), WithChildren(leaf))
	other := NewGameObject(WithName("other"))
	root := NewGameObject(WithName("root"), WithChildren(skipped, other))

	var visited []string
	root.Traverse(func(o GameObject) bool {
		visited = append(visited, o.Name())
		return o.Name() != "skipped"
	})
	assert.Equal(t, []string{"root", "skipped", "other"}, visited)
}

func TestGameObject_WorldMatrix(t *testing.T) {
	parentT := common.IdentityTransform()
	parentT.Translation = [3]float32{1, 0, 0}
	childT := common.IdentityTransform()
	childT.Translation = [3]float32{0, 2, 0}

	child := NewGameObject(WithTransform(childT))
	NewGameObject(WithTransform(parentT), WithChildren(child))

	m := child.WorldMatrix()
	assert.InDelta(t, 1, m[12], 1e-6)
	assert.InDelta(t, 2, m[13], 1e-6)
	assert.InDelta(t, 0, m[14], 1e-6)
}

func TestGameObject_DisposeCascades(t *testing.T) {
	child := NewGameObject()
	root := NewGameObject(WithChildren(child))

	calls := 0
	root.OnDispose(func(GameObject) { calls++ })
	unsub := child.OnDispose(func(GameObject) { calls += 10 })
	unsub()

	root.Dispose()
	root.Dispose()
	assert.True(t, root.Disposed())
	assert.True(t, child.Disposed())
	assert.Equal(t, 1, calls)
}

func TestGameObject_PayloadUpgrade(t *testing.T) {
	imported := &common.ImportedMaterial{Name: "paint"}
	obj := NewGameObject(WithImportedMaterials(imported))
	require.Len(t, obj.ImportedMaterials(), 1)

	old := material.NewMaterial(material.WithName("paint"))
	obj.SetMaterials([]material.Material{old})
	assert.Nil(t, obj.ImportedMaterials())

	replacement := material.NewMaterial(material.WithName("paint2"))
	assert.True(t, obj.ReplaceMaterial(old, replacement))
	assert.Same(t, replacement, obj.Materials()[0])
	assert.False(t, obj.ReplaceMaterial(old, replacement))
}

func TestGameObject_TypeFromPayload(t *testing.T) {
	assert.Equal(t, TypeCamera, NewGameObject(WithImportedCamera(&common.ImportedCamera{})).Type())
	assert.Equal(t, TypeLight, NewGameObject(WithImportedLight(&common.ImportedLight{})).Type())
	assert.Equal(t, TypeObject, NewGameObject().Type())
}

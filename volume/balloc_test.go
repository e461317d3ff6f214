package volume

import (
	"testing"

	"github.com/dargueta/breakexfat/errors"
	exfattest "github.com/dargueta/breakexfat/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateActiveBitmap(t *testing.T) {
	vol := &Volume{}
	vol.UpdateActiveBitmap(1)
	assert.Equal(t, 1, vol.ActiveBitmap())
	vol.UpdateActiveBitmap(3)
	assert.Equal(t, 1, vol.ActiveBitmap())
	vol.UpdateActiveBitmap(0)
	assert.Equal(t, 0, vol.ActiveBitmap())
}

// With 4 KiB clusters the bitmap is addressed through 32770 = 4096*8 + 2.
// 32770 = 3*10923 + 1, so cluster 10923 lands 3 clusters into the bitmap, with
// a shift of 0 and a byte index of 1.
func TestAllocBitmap__Addressing(t *testing.T) {
	vol, _ := mountImage(t, exfattest.ScenarioSpec())
	require.EqualValues(t, 3, vol.AllocOffset)

	require.NoError(t, vol.SetAllocBitmap(10923))
	entry := vol.Clusters().Lookup(6)
	require.NotNil(t, entry, "bitmap cluster 6 wasn't loaded")
	assert.True(t, entry.Dirty)
	assert.EqualValues(t, 0x01, entry.Data[1])

	allocated, err := vol.GetAllocBitmap(10923)
	require.NoError(t, err)
	assert.True(t, allocated)

	require.NoError(t, vol.UnsetAllocBitmap(10923))
	assert.EqualValues(t, 0x00, entry.Data[1])
	allocated, err = vol.GetAllocBitmap(10923)
	require.NoError(t, err)
	assert.False(t, allocated)
}

// 32770 = 2*15000 + 2770: shift 346 and byte index 2. A shift that large
// addresses no bit at all.
func TestAllocBitmap__ShiftTooLarge(t *testing.T) {
	vol, _ := mountImage(t, exfattest.ScenarioSpec())

	require.NoError(t, vol.SetAllocBitmap(15000))
	entry := vol.Clusters().Lookup(5)
	require.NotNil(t, entry)
	assert.Equal(t, make([]byte, 4096), entry.Data)

	allocated, err := vol.GetAllocBitmap(15000)
	require.NoError(t, err)
	assert.False(t, allocated)
}

func TestAllocBitmap__WrittenBack(t *testing.T) {
	spec := exfattest.ScenarioSpec()
	fs := exfattest.CreateImageFile(t, spec)
	vol, err := FillSuper(fs, exfattest.ImagePath)
	require.NoError(t, err)

	require.NoError(t, vol.SetAllocBitmap(10923))
	require.NoError(t, vol.PutSuper())

	image := exfattest.ReadImageFile(t, fs)
	assert.EqualValues(t, 0x01, image[spec.ClusterOffset(6)+1])
}

func TestAllocBitmap__SecondBitmapMissing(t *testing.T) {
	vol, _ := mountImage(t, exfattest.ScenarioSpec())
	vol.UpdateActiveBitmap(1)

	err := vol.SetAllocBitmap(10923)
	assert.ErrorIs(t, err, errors.ErrNotFound)
	_, err = vol.GetAllocBitmap(10923)
	assert.ErrorIs(t, err, errors.ErrNotFound)
}

func TestAllocBitmap__InvalidCluster(t *testing.T) {
	vol, _ := mountImage(t, exfattest.ScenarioSpec())

	assert.ErrorIs(t, vol.SetAllocBitmap(1), errors.ErrInvalidArgument)
	_, err := vol.GetAllocBitmap(20000)
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestAllocBitmap__BitmapClusterOutOfRange(t *testing.T) {
	vol, _ := mountImage(t, exfattest.DefaultImageSpec())

	// 32770 / 2 = 16385 clusters past the bitmap, far beyond the heap.
	err := vol.SetAllocBitmap(2)
	assert.ErrorIs(t, err, errors.ErrIOFailed)
	assert.ErrorIs(t, err, errors.ErrResultOutOfRange)
}

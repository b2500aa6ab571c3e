package identity_test

import (
	"errors"
	"os"
	"testing"

	"github.com/benmeehan/proximity-agent/internal/mocks"
	"github.com/benmeehan/proximity-agent/pkg/identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestLoadDeviceInfo_Existing(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("ReadJsonFile", "device.json", mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*identity.Identity).ID = "device-1"
	}).Return(nil)

	d := identity.NewDeviceInfo("device.json", fileOps)
	assert.NoError(t, d.LoadDeviceInfo())
	assert.Equal(t, "device-1", d.GetDeviceID())
	fileOps.AssertNotCalled(t, "WriteJsonFile", mock.Anything, mock.Anything)
}

func TestLoadDeviceInfo_GeneratesID(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("ReadJsonFile", "device.json", mock.Anything).Return(os.ErrNotExist)
	fileOps.On("WriteJsonFile", "device.json", mock.Anything).Return(nil)

	d := identity.NewDeviceInfo("device.json", fileOps)
	assert.NoError(t, d.LoadDeviceInfo())

	_, err := uuid.Parse(d.GetDeviceID())
	assert.NoError(t, err)
	fileOps.AssertExpectations(t)
}

func TestLoadDeviceInfo_ReadError(t *testing.T) {
	fileOps := new(mocks.MockFileOperations)
	fileOps.On("ReadJsonFile", "device.json", mock.Anything).Return(errors.New("corrupt"))

	d := identity.NewDeviceInfo("device.json", fileOps)
	assert.EqualError(t, d.LoadDeviceInfo(), "corrupt")
}

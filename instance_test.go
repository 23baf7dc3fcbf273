package novasolaris_test

import (
	"strings"
	"testing"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/internal/tests/common"
	"github.com/guillermomolina/nova-solaris/pkg/zones"
)

type InstanceTestSuite struct {
	common.Suite
}

func TestInstanceTestSuite(t *testing.T) {
	suite.Run(t, new(InstanceTestSuite))
}

func (s *InstanceTestSuite) TestNewInstance() {
	instance := s.Context.NewInstance()
	s.NotEmpty(uuid.Parse(instance.ID))
	s.True(strings.HasPrefix(instance.Name, "instance-"), "name should derive from id")
	s.Equal(novasolaris.PowerDesiredRunning, instance.DesiredPower)
}

func (s *InstanceTestSuite) TestInstance() {
	instance := s.NewInstance()

	tests := []struct {
		description string
		id          string
		expectedErr bool
	}{
		{"missing id", "", true},
		{"invalid id", "asdf", true},
		{"nonexistant id", uuid.New(), true},
		{"real id", instance.ID, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		i, err := s.Context.Instance(test.id)
		if test.expectedErr {
			s.Error(err, msg("lookup should fail"))
			s.Nil(i, msg("failure shouldn't return an instance"))
		} else {
			s.NoError(err, msg("lookup should succeed"))
			s.True(assert.ObjectsAreEqual(instance, i), msg("success should return correct data"))
		}
	}
}

func (s *InstanceTestSuite) TestRefresh() {
	instance := s.NewInstance()
	instanceCopy := &novasolaris.Instance{}
	*instanceCopy = *instance
	instance.Metadata["foo"] = "bar"

	_ = instance.Save()
	s.NoError(instanceCopy.Refresh(), "refresh existing should succeed")
	s.True(assert.ObjectsAreEqual(instance, instanceCopy), "refresh should pull new data")

	newInstance := s.Context.NewInstance()
	s.Error(newInstance.Refresh(), "unsaved instance refresh should fail")
}

func (s *InstanceTestSuite) TestValidate() {
	tests := []struct {
		description string
		instance    *novasolaris.Instance
		expectedErr bool
	}{
		{"missing id", &novasolaris.Instance{}, true},
		{"invalid id", &novasolaris.Instance{ID: "asdf"}, true},
		{"missing name", &novasolaris.Instance{ID: uuid.New()}, true},
		{"missing flavor", &novasolaris.Instance{ID: uuid.New(), Name: "foo"}, true},
		{"invalid flavor", &novasolaris.Instance{ID: uuid.New(), Name: "foo",
			FlavorID: "asdf"}, true},
		{"missing desired power", &novasolaris.Instance{ID: uuid.New(), Name: "foo",
			FlavorID: uuid.New()}, true},
		{"invalid desired power", &novasolaris.Instance{ID: uuid.New(), Name: "foo",
			FlavorID: uuid.New(), DesiredPower: "asdf"}, true},
		{"valid instance", &novasolaris.Instance{ID: uuid.New(), Name: "foo",
			FlavorID: uuid.New(), DesiredPower: novasolaris.PowerDesiredRunning}, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		err := test.instance.Validate()
		if test.expectedErr {
			s.Error(err, msg("should be invalid"))
		} else {
			s.NoError(err, msg("should be valid"))
		}
	}
}

func (s *InstanceTestSuite) TestSave() {
	goodInstance := s.Context.NewInstance()
	goodInstance.FlavorID = uuid.New()

	clobberInstance := &novasolaris.Instance{}
	*clobberInstance = *goodInstance
	clobberInstance.HostID = uuid.New()

	tests := []struct {
		description string
		instance    *novasolaris.Instance
		expectedErr bool
	}{
		{"invalid instance", s.Context.NewInstance(), true},
		{"valid instance", goodInstance, false},
		{"existing instance", goodInstance, false},
		{"existing instance clobber changes", clobberInstance, true},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		err := test.instance.Save()
		if test.expectedErr {
			s.Error(err, msg("should be invalid"))
		} else {
			s.NoError(err, msg("should be valid"))
		}
	}
}

func (s *InstanceTestSuite) TestDestroy() {
	instance := s.NewInstance()
	s.NoError(instance.Destroy())

	_, err := s.Context.Instance(instance.ID)
	s.Error(err, "lookup after destroy should fail")

	blank := &novasolaris.Instance{}
	s.Error(blank.Destroy(), "destroying a blank instance should fail")
}

func (s *InstanceTestSuite) TestSpec() {
	instance := s.NewInstance()
	flavor, err := s.Context.Flavor(instance.FlavorID)
	s.Require().NoError(err)
	flavor.ExtraSpecs["zonecfg:brand"] = "solaris-kz"
	s.Require().NoError(flavor.Save())

	spec, err := instance.Spec()
	s.NoError(err)
	s.Equal(instance.Name, spec.Name)
	s.Equal(instance.ID, spec.UUID)
	s.Equal(zones.BrandSolarisKZ, spec.Brand)
	s.Equal(flavor.Resources, spec.Resources)

	orphan := s.Context.NewInstance()
	orphan.FlavorID = uuid.New()
	_, err = orphan.Spec()
	s.Error(err, "spec with missing flavor should fail")
}

func (s *InstanceTestSuite) TestForEachInstance() {
	instance := s.NewInstance()
	instance2 := s.NewInstance()
	expectedFound := map[string]bool{
		instance.ID:  true,
		instance2.ID: true,
	}

	resultFound := make(map[string]bool)

	err := s.Context.ForEachInstance(func(i *novasolaris.Instance) error {
		resultFound[i.ID] = true
		return nil
	})
	s.NoError(err)
	s.True(assert.ObjectsAreEqual(expectedFound, resultFound))
}

func (s *InstanceTestSuite) TestFirstInstance() {
	_, _ = s.NewInstance(), s.NewInstance()
	instance := s.NewInstance()

	found, err := s.Context.FirstInstance(func(i *novasolaris.Instance) bool {
		return i.ID == instance.ID
	})
	s.NoError(err)
	s.Require().NotNil(found)
	s.Equal(instance.ID, found.ID)

	missing, err := s.Context.FirstInstance(func(i *novasolaris.Instance) bool {
		return false
	})
	s.NoError(err)
	s.Nil(missing)
}

package novasolaris_test

import (
	"testing"

	"github.com/pborman/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/guillermomolina/nova-solaris"
	"github.com/guillermomolina/nova-solaris/internal/tests/common"
	"github.com/guillermomolina/nova-solaris/pkg/virt"
	"github.com/guillermomolina/nova-solaris/pkg/zones"
)

type FlavorTestSuite struct {
	common.Suite
}

func TestFlavorTestSuite(t *testing.T) {
	suite.Run(t, new(FlavorTestSuite))
}

func (s *FlavorTestSuite) TestNewFlavor() {
	f := s.Context.NewFlavor()
	s.NotEmpty(uuid.Parse(f.ID))
}

func (s *FlavorTestSuite) TestFlavor() {
	flavor := s.NewFlavor()

	tests := []struct {
		description string
		id          string
		expectedErr bool
	}{
		{"missing id", "", true},
		{"invalid id", "asdf", true},
		{"nonexistant id", uuid.New(), true},
		{"real id", flavor.ID, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		f, err := s.Context.Flavor(test.id)
		if test.expectedErr {
			s.Error(err, msg("lookup should fail"))
			s.Nil(f, msg("failure shouldn't return a flavor"))
		} else {
			s.NoError(err, msg("lookup should succeed"))
			s.True(assert.ObjectsAreEqual(flavor, f), msg("success should return correct data"))
		}
	}
}

func (s *FlavorTestSuite) TestRefresh() {
	flavor := s.NewFlavor()
	flavorCopy := &novasolaris.Flavor{}
	*flavorCopy = *flavor
	flavor.Image = uuid.New()

	_ = flavor.Save()
	s.NoError(flavorCopy.Refresh(), "refresh existing should succeed")
	s.True(assert.ObjectsAreEqual(flavor, flavorCopy), "refresh should pull new data")

	newFlavor := s.Context.NewFlavor()
	s.Error(newFlavor.Refresh(), "unsaved flavor refresh should fail")
}

func (s *FlavorTestSuite) TestBrand() {
	flavor := s.Context.NewFlavor()
	s.Equal(zones.BrandSolaris, flavor.Brand(), "default should be solaris")

	flavor.ExtraSpecs["zonecfg:brand"] = "solaris-kz"
	s.Equal(zones.BrandSolarisKZ, flavor.Brand())
}

func (s *FlavorTestSuite) TestValidate() {
	resources := virt.Resources{MemoryMB: 1024, DiskGB: 10, VCPUs: 2}

	tests := []struct {
		description string
		flavor      *novasolaris.Flavor
		expectedErr bool
	}{
		{"missing id", &novasolaris.Flavor{}, true},
		{"invalid id", &novasolaris.Flavor{ID: "asdf"}, true},
		{"missing name", &novasolaris.Flavor{ID: uuid.New()}, true},
		{"missing memory", &novasolaris.Flavor{ID: uuid.New(), Name: "foo"}, true},
		{"missing cpu", &novasolaris.Flavor{ID: uuid.New(), Name: "foo",
			Resources: virt.Resources{MemoryMB: 1024}}, true},
		{"invalid brand", &novasolaris.Flavor{ID: uuid.New(), Name: "foo",
			Resources:  resources,
			ExtraSpecs: map[string]string{"zonecfg:brand": "lx"}}, true},
		{"valid flavor", &novasolaris.Flavor{ID: uuid.New(), Name: "foo",
			Resources: resources}, false},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		err := test.flavor.Validate()
		if test.expectedErr {
			s.Error(err, msg("should be invalid"))
		} else {
			s.NoError(err, msg("should be valid"))
		}
	}
}

func (s *FlavorTestSuite) TestSave() {
	goodFlavor := s.Context.NewFlavor()
	goodFlavor.Name = "good"
	goodFlavor.Resources = virt.Resources{MemoryMB: 1024, DiskGB: 10, VCPUs: 1}

	clobberFlavor := &novasolaris.Flavor{}
	*clobberFlavor = *goodFlavor
	clobberFlavor.Image = uuid.New()

	tests := []struct {
		description string
		flavor      *novasolaris.Flavor
		expectedErr bool
	}{
		{"invalid flavor", s.Context.NewFlavor(), true},
		{"valid flavor", goodFlavor, false},
		{"existing flavor", goodFlavor, false},
		{"existing flavor clobber changes", clobberFlavor, true},
	}

	for _, test := range tests {
		msg := testMsgFunc(test.description)
		err := test.flavor.Save()
		if test.expectedErr {
			s.Error(err, msg("should be invalid"))
		} else {
			s.NoError(err, msg("should be valid"))
		}
	}
}

func (s *FlavorTestSuite) TestForEachFlavor() {
	flavor := s.NewFlavor()
	flavor2 := s.NewFlavor()
	expectedFound := map[string]bool{
		flavor.ID:  true,
		flavor2.ID: true,
	}

	resultFound := make(map[string]bool)

	err := s.Context.ForEachFlavor(func(f *novasolaris.Flavor) error {
		resultFound[f.ID] = true
		return nil
	})
	s.NoError(err)
	s.True(assert.ObjectsAreEqual(expectedFound, resultFound))
}

package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/vytor/hanziflash/internal/models"
	"github.com/vytor/hanziflash/internal/repository"
	"github.com/vytor/hanziflash/internal/repository/sqlite"
	"github.com/vytor/hanziflash/internal/testutil"
)

type CollectionStoreSuite struct {
	suite.Suite
	store repository.CollectionStore
}

func (s *CollectionStoreSuite) SetupTest() {
	s.store = sqlite.NewCollectionStore(testutil.NewTestProvider(s.T()))
}

func (s *CollectionStoreSuite) TestPutAndGetAll() {
	ctx := context.Background()
	hsk := models.Collection{ID: "col-a", Name: "HSK 1", Color: models.StringPtr("#ff0000")}
	food := models.Collection{ID: "col-b", Name: "Food"}

	s.Require().NoError(s.store.Put(ctx, hsk, food))

	all, err := s.store.GetAll(ctx)
	s.Require().NoError(err)
	s.Assert().Equal([]models.Collection{food, hsk}, all)

	got, err := s.store.Get(ctx, "col-a")
	s.Require().NoError(err)
	s.Assert().Equal(&hsk, got)
}

func (s *CollectionStoreSuite) TestPutReplacesByKey() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, models.Collection{ID: "col-a", Name: "HSK 1", Color: models.StringPtr("#ff0000")}))

	renamed := models.Collection{ID: "col-a", Name: "HSK level 1"}
	s.Require().NoError(s.store.Put(ctx, renamed))

	got, err := s.store.Get(ctx, "col-a")
	s.Require().NoError(err)
	s.Assert().Equal(&renamed, got)
}

func (s *CollectionStoreSuite) TestPutNothing() {
	s.Assert().NoError(s.store.Put(context.Background()))
}

func (s *CollectionStoreSuite) TestDeleteAndClear() {
	ctx := context.Background()
	s.Require().NoError(s.store.Put(ctx, models.Collection{ID: "col-a", Name: "A"}, models.Collection{ID: "col-b", Name: "B"}))

	s.Require().NoError(s.store.Delete(ctx, "col-a"))
	got, err := s.store.Get(ctx, "col-a")
	s.Require().NoError(err)
	s.Assert().Nil(got)

	s.Require().NoError(s.store.Clear(ctx))
	all, err := s.store.GetAll(ctx)
	s.Require().NoError(err)
	s.Assert().Empty(all)
}

func TestCollectionStoreSuite(t *testing.T) {
	suite.Run(t, new(CollectionStoreSuite))
}

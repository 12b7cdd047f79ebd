package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var rewardTestColumns = []string{"id", "name", "description", "points_required", "is_active", "created_at", "updated_at"}

func TestRewardService_AvailableRewards(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRewardService(db)
	now := time.Now()

	t.Run("cheapest first", func(t *testing.T) {
		mock.ExpectQuery("WHERE is_active = true AND points_required <= \\$1").
			WithArgs(12).
			WillReturnRows(sqlmock.NewRows(rewardTestColumns).
				AddRow(1, "Espresso", "Single shot", 8, true, now, now).
				AddRow(2, "Latte", "Any size", 10, true, now, now))

		rewards, err := service.AvailableRewards(context.Background(), 12)
		assert.NoError(t, err)
		assert.Len(t, rewards, 2)
		assert.Equal(t, "Espresso", rewards[0].Name)
		assert.LessOrEqual(t, rewards[0].PointsRequired, rewards[1].PointsRequired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty below the cheapest reward", func(t *testing.T) {
		mock.ExpectQuery("WHERE is_active = true AND points_required <= \\$1").
			WithArgs(3).
			WillReturnRows(sqlmock.NewRows(rewardTestColumns))

		rewards, err := service.AvailableRewards(context.Background(), 3)
		assert.NoError(t, err)
		assert.Empty(t, rewards)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRewardService_SingleBestReward(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRewardService(db)
	now := time.Now()

	t.Run("returns cheapest affordable reward", func(t *testing.T) {
		mock.ExpectQuery("ORDER BY points_required ASC").
			WithArgs(10).
			WillReturnRows(sqlmock.NewRows(rewardTestColumns).
				AddRow(1, "Espresso", "Single shot", 8, true, now, now))

		reward, err := service.SingleBestReward(context.Background(), 10)
		assert.NoError(t, err)
		assert.NotNil(t, reward)
		assert.Equal(t, "Espresso", reward.Name)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("nil when nothing affordable", func(t *testing.T) {
		mock.ExpectQuery("ORDER BY points_required ASC").
			WithArgs(2).
			WillReturnError(sql.ErrNoRows)

		reward, err := service.SingleBestReward(context.Background(), 2)
		assert.NoError(t, err)
		assert.Nil(t, reward)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRewardService_GetActiveReward(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRewardService(db)
	now := time.Now()

	t.Run("active reward by id", func(t *testing.T) {
		mock.ExpectQuery("WHERE id = \\$1 AND is_active = true").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows(rewardTestColumns).
				AddRow(2, "Latte", "Any size", 10, true, now, now))

		reward, err := service.GetActiveReward(context.Background(), 2)
		assert.NoError(t, err)
		assert.Equal(t, 10, reward.PointsRequired)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deactivated reward is not found", func(t *testing.T) {
		mock.ExpectQuery("WHERE id = \\$1 AND is_active = true").
			WithArgs(9).
			WillReturnError(sql.ErrNoRows)

		_, err := service.GetActiveReward(context.Background(), 9)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRewardService_CreateReward(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRewardService(db)
	now := time.Now()

	t.Run("valid reward", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO rewards").
			WithArgs("Latte", "Any size", 10).
			WillReturnRows(sqlmock.NewRows(rewardTestColumns).
				AddRow(3, "Latte", "Any size", 10, true, now, now))

		reward, err := service.CreateReward(context.Background(), "Latte", "Any size", 10)
		assert.NoError(t, err)
		assert.True(t, reward.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("zero cost rejected", func(t *testing.T) {
		_, err := service.CreateReward(context.Background(), "Free", "", 0)
		assert.ErrorIs(t, err, ErrValidation)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestRewardService_DeactivateReward(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewRewardService(db)
	now := time.Now()

	t.Run("soft delete keeps the row", func(t *testing.T) {
		mock.ExpectQuery("UPDATE rewards SET is_active = false").
			WithArgs(2).
			WillReturnRows(sqlmock.NewRows(rewardTestColumns).
				AddRow(2, "Latte", "Any size", 10, false, now, now))

		reward, err := service.DeactivateReward(context.Background(), 2)
		assert.NoError(t, err)
		assert.False(t, reward.IsActive)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown reward", func(t *testing.T) {
		mock.ExpectQuery("UPDATE rewards SET is_active = false").
			WithArgs(99).
			WillReturnError(sql.ErrNoRows)

		_, err := service.DeactivateReward(context.Background(), 99)
		assert.ErrorIs(t, err, ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

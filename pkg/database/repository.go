package database

import (
	"time"

	"gorm.io/gorm"
)

// RunRepository handles sweep run database operations
type RunRepository struct {
	db *gorm.DB
}

// NewRunRepository creates a new run repository
func NewRunRepository(db *gorm.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create adds a new run record
func (r *RunRepository) Create(run *Run) error {
	return r.db.Create(run).Error
}

// Finish records the final status of a run
func (r *RunRepository) Finish(id, status string, finishedAt time.Time, points int) error {
	result := r.db.Model(&Run{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      status,
		"finished_at": finishedAt,
		"point_count": points,
	})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetByID retrieves a single run
func (r *RunRepository) GetByID(id string) (*Run, error) {
	var run Run
	err := r.db.Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRecent retrieves the most recent N runs
func (r *RunRepository) GetRecent(limit int) ([]Run, error) {
	var runs []Run
	err := r.db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// GetRecentPaginated retrieves runs with pagination
func (r *RunRepository) GetRecentPaginated(page, perPage int) ([]Run, int64, error) {
	var runs []Run
	var total int64

	// Count total records
	if err := r.db.Model(&Run{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	// Get paginated results
	offset := (page - 1) * perPage
	err := r.db.Order("started_at DESC").
		Offset(offset).
		Limit(perPage).
		Find(&runs).Error

	return runs, total, err
}

// DeleteOlderThan deletes runs started before the given time, with their points
func (r *RunRepository) DeleteOlderThan(before time.Time) (int64, error) {
	var deleted int64
	err := r.db.Transaction(func(tx *gorm.DB) error {
		old := tx.Model(&Run{}).Select("id").Where("started_at < ?", before)
		if err := tx.Where("run_id IN (?)", old).Delete(&Point{}).Error; err != nil {
			return err
		}
		result := tx.Where("started_at < ?", before).Delete(&Run{})
		deleted = result.RowsAffected
		return result.Error
	})
	return deleted, err
}

// PointRepository handles BER point database operations
type PointRepository struct {
	db *gorm.DB
}

// NewPointRepository creates a new point repository
func NewPointRepository(db *gorm.DB) *PointRepository {
	return &PointRepository{db: db}
}

// Create adds a new point record
func (r *PointRepository) Create(p *Point) error {
	return r.db.Create(p).Error
}

// GetByRun retrieves every point of a run ordered as it was swept
func (r *PointRepository) GetByRun(runID string) ([]Point, error) {
	var points []Point
	err := r.db.Where("run_id = ?", runID).
		Order("id ASC").
		Find(&points).Error
	return points, err
}

// GetByModulation retrieves points for one curve across runs
func (r *PointRepository) GetByModulation(modulation string, coded bool, limit int) ([]Point, error) {
	var points []Point
	err := r.db.Where("modulation = ? AND coded = ?", modulation, coded).
		Order("ebn0_db ASC, created_at DESC").
		Limit(limit).
		Find(&points).Error
	return points, err
}

// CountByRun returns the number of points stored for a run
func (r *PointRepository) CountByRun(runID string) (int64, error) {
	var count int64
	err := r.db.Model(&Point{}).Where("run_id = ?", runID).Count(&count).Error
	return count, err
}

package bookgate

import (
	"context"
	"fmt"
	"mime"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Storage folders, one per file family.
const (
	folderCovers    = "covers"
	folderBooks     = "books"
	folderAudio     = "audio"
	folderVideo     = "video"
	folderAnswers   = "answers"
	folderMaterials = "materials"
	folderClassroom = "classroom"
	folderGlossary  = "glossary"
)

// uploadOne stores a single file under folder and returns its public
// URL.
func (s *service) uploadOne(ctx context.Context, file *FileUpload, folder string) (string, error) {
	key := objectKey(folder, file.FileName)
	params := UploadParams{ObjectKey: key, MimeType: file.MimeType}
	if err := s.blobStore.Upload(ctx, file.Reader, params); err != nil {
		return "", s.storageError("upload", key, err)
	}
	return s.blobStore.PublicURL(key), nil
}

// deleteByURL removes the stored object behind a public URL. URLs that
// do not map into the backend are silently skipped.
func (s *service) deleteByURL(ctx context.Context, url string) error {
	key, ok := s.blobStore.ObjectKey(url)
	if !ok {
		return nil
	}
	if err := s.blobStore.Delete(ctx, key); err != nil {
		return s.storageError("delete", key, err)
	}
	return nil
}

// discard deletes stored files best-effort. It runs after a failed
// mutation (to reclaim fresh uploads) and after a successful one (to
// reclaim replaced files), so failures are logged, never returned.
func (s *service) discard(ctx context.Context, urls []string) {
	var wg sync.WaitGroup
	for _, url := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.deleteByURL(ctx, url); err != nil {
				s.logger.Warn("orphaned file left in storage",
					zap.String("url", url), zap.Error(err))
			}
		}()
	}
	wg.Wait()
}

// uploadTracker collects the URLs of files stored during one mutation
// so they can be reclaimed if the mutation fails partway.
type uploadTracker struct {
	mu   sync.Mutex
	urls []string
}

func (t *uploadTracker) add(url string) {
	t.mu.Lock()
	t.urls = append(t.urls, url)
	t.mu.Unlock()
}

// Resource operations

func (s *service) CreateResource(ctx context.Context, req CreateResourceRequest) (*Resource, error) {
	if req.Title == "" {
		return nil, fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if !req.TargetRole.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.TargetRole)
	}
	if req.Cover == nil {
		return nil, fmt.Errorf("%w: a cover image is required", ErrInvalidInput)
	}
	if req.Document == nil {
		return nil, fmt.Errorf("%w: a book document is required", ErrInvalidInput)
	}
	if len(req.PageAudio) != len(req.AudioPages) {
		return nil, fmt.Errorf("%w: %d audio files for %d page numbers", ErrInvalidInput, len(req.PageAudio), len(req.AudioPages))
	}
	if len(req.PageVideo) != len(req.VideoPages) {
		return nil, fmt.Errorf("%w: %d video files for %d page numbers", ErrInvalidInput, len(req.PageVideo), len(req.VideoPages))
	}

	now := time.Now().UTC()
	resource := &Resource{
		ID:         uuid.New(),
		Title:      req.Title,
		TargetRole: req.TargetRole,
		PageAudio:  make([]PageMedia, len(req.PageAudio)),
		PageVideo:  make([]PageMedia, len(req.PageVideo)),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	var tracker uploadTracker
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		url, err := s.uploadOne(gctx, req.Cover, folderCovers)
		if err != nil {
			return err
		}
		tracker.add(url)
		resource.CoverURL = url
		return nil
	})
	g.Go(func() error {
		url, err := s.uploadOne(gctx, req.Document, folderBooks)
		if err != nil {
			return err
		}
		tracker.add(url)
		resource.DocumentURL = url
		return nil
	})
	for i := range req.PageAudio {
		g.Go(func() error {
			url, err := s.uploadOne(gctx, &req.PageAudio[i], folderAudio)
			if err != nil {
				return err
			}
			tracker.add(url)
			resource.PageAudio[i] = PageMedia{PageNumber: req.AudioPages[i], URL: url}
			return nil
		})
	}
	for i := range req.PageVideo {
		g.Go(func() error {
			url, err := s.uploadOne(gctx, &req.PageVideo[i], folderVideo)
			if err != nil {
				return err
			}
			tracker.add(url)
			resource.PageVideo[i] = PageMedia{PageNumber: req.VideoPages[i], URL: url}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, err
	}

	if err := s.repository.CreateResource(ctx, resource); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, &ResourceError{ResourceID: resource.ID, Op: "create", Err: err}
	}

	s.logger.Info("resource created",
		zap.String("resource_id", resource.ID.String()),
		zap.String("title", resource.Title))

	return resource, nil
}

func (s *service) GetResource(ctx context.Context, id uuid.UUID) (*Resource, error) {
	return s.repository.GetResource(ctx, id)
}

func (s *service) ListResources(ctx context.Context) ([]*Resource, error) {
	return s.repository.ListResources(ctx)
}

func (s *service) UpdateResource(ctx context.Context, req UpdateResourceRequest) (*Resource, error) {
	if len(req.PageAudio) != len(req.AudioPages) {
		return nil, fmt.Errorf("%w: %d audio files for %d page numbers", ErrInvalidInput, len(req.PageAudio), len(req.AudioPages))
	}
	if len(req.PageVideo) != len(req.VideoPages) {
		return nil, fmt.Errorf("%w: %d video files for %d page numbers", ErrInvalidInput, len(req.PageVideo), len(req.VideoPages))
	}
	if req.TargetRole != "" && !req.TargetRole.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, req.TargetRole)
	}

	resource, err := s.repository.GetResource(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	if req.Title != "" {
		resource.Title = req.Title
	}
	if req.TargetRole != "" {
		resource.TargetRole = req.TargetRole
	}

	// Files to reclaim once the new state is durable. Nothing in this
	// list is touched before the repository write succeeds.
	var staged []string
	staged = append(staged, droppedURLs(resource.PageAudio, req.KeepAudio)...)
	staged = append(staged, droppedURLs(resource.PageVideo, req.KeepVideo)...)

	newAudio := make([]PageMedia, len(req.PageAudio))
	newVideo := make([]PageMedia, len(req.PageVideo))

	var tracker uploadTracker
	g, gctx := errgroup.WithContext(ctx)

	if req.Cover != nil {
		old := resource.CoverURL
		g.Go(func() error {
			url, err := s.uploadOne(gctx, req.Cover, folderCovers)
			if err != nil {
				return err
			}
			tracker.add(url)
			resource.CoverURL = url
			return nil
		})
		if old != "" {
			staged = append(staged, old)
		}
	}
	if req.Document != nil {
		old := resource.DocumentURL
		g.Go(func() error {
			url, err := s.uploadOne(gctx, req.Document, folderBooks)
			if err != nil {
				return err
			}
			tracker.add(url)
			resource.DocumentURL = url
			return nil
		})
		if old != "" {
			staged = append(staged, old)
		}
	}
	for i := range req.PageAudio {
		g.Go(func() error {
			url, err := s.uploadOne(gctx, &req.PageAudio[i], folderAudio)
			if err != nil {
				return err
			}
			tracker.add(url)
			newAudio[i] = PageMedia{PageNumber: req.AudioPages[i], URL: url}
			return nil
		})
	}
	for i := range req.PageVideo {
		g.Go(func() error {
			url, err := s.uploadOne(gctx, &req.PageVideo[i], folderVideo)
			if err != nil {
				return err
			}
			tracker.add(url)
			newVideo[i] = PageMedia{PageNumber: req.VideoPages[i], URL: url}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, err
	}

	resource.PageAudio = append(append([]PageMedia{}, req.KeepAudio...), newAudio...)
	resource.PageVideo = append(append([]PageMedia{}, req.KeepVideo...), newVideo...)
	resource.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateResource(ctx, resource); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, &ResourceError{ResourceID: resource.ID, Op: "update", Err: err}
	}

	s.discard(ctx, staged)
	return resource, nil
}

// droppedURLs returns the URLs of stored media absent from the kept
// set.
func droppedURLs(stored, kept []PageMedia) []string {
	keep := make(map[string]bool, len(kept))
	for _, m := range kept {
		keep[m.URL] = true
	}
	var dropped []string
	for _, m := range stored {
		if !keep[m.URL] {
			dropped = append(dropped, m.URL)
		}
	}
	return dropped
}

func (s *service) DeleteResource(ctx context.Context, id uuid.UUID) error {
	resource, err := s.repository.GetResource(ctx, id)
	if err != nil {
		return err
	}

	// Storage cleanup is best-effort; a flaky backend must not leave
	// codes redeemable for a resource that is going away.
	s.discard(ctx, resource.ReferencedURLs())

	if err := s.repository.DeleteCodesByResource(ctx, id); err != nil {
		return &ResourceError{ResourceID: id, Op: "delete", Err: err}
	}
	if err := s.repository.DeleteResource(ctx, id); err != nil {
		return &ResourceError{ResourceID: id, Op: "delete", Err: err}
	}

	s.logger.Info("resource deleted", zap.String("resource_id", id.String()))
	return nil
}

func (s *service) DeleteResourceItem(ctx context.Context, req DeleteResourceItemRequest) (*Resource, error) {
	resource, err := s.repository.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	var removed []string
	switch req.Kind {
	case ItemAnswers:
		resource.Answers, removed, err = removeFromGroups(resource.Answers, req.Title, req.ExactURL)
	case ItemMaterials:
		resource.Materials, removed, err = removeFromGroups(resource.Materials, req.Title, req.ExactURL)
	case ItemAudio:
		resource.PageAudio, removed, err = removePageMedia(resource.PageAudio, req.PageNumber, req.ExactURL)
	case ItemVideo:
		resource.PageVideo, removed, err = removePageMedia(resource.PageVideo, req.PageNumber, req.ExactURL)
	case ItemClassroomDocument:
		if resource.Classroom == nil || resource.Classroom.DocumentURL == "" {
			return nil, fmt.Errorf("%w: no classroom document", ErrFileNotFound)
		}
		removed = []string{resource.Classroom.DocumentURL}
		resource.Classroom.DocumentURL = ""
	case ItemClassroomMedia:
		if resource.Classroom == nil {
			return nil, fmt.Errorf("%w: no classroom media", ErrFileNotFound)
		}
		resource.Classroom.Media, removed, err = removePageMedia(resource.Classroom.Media, req.PageNumber, req.ExactURL)
	case ItemGlossary:
		resource.Glossary, removed, err = removeGlossaryEntry(resource.Glossary, req.Title)
	default:
		return nil, fmt.Errorf("%w: unknown item kind %q", ErrInvalidInput, req.Kind)
	}
	if err != nil {
		return nil, err
	}

	if resource.Classroom != nil && resource.Classroom.DocumentURL == "" && len(resource.Classroom.Media) == 0 {
		resource.Classroom = nil
	}
	resource.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateResource(ctx, resource); err != nil {
		return nil, &ResourceError{ResourceID: resource.ID, Op: "delete item", Err: err}
	}

	s.discard(ctx, removed)
	return resource, nil
}

// removeFromGroups drops either one file (by exact URL) or a whole
// group (by title) out of a material group list.
func removeFromGroups(groups []MaterialGroup, title, exactURL string) ([]MaterialGroup, []string, error) {
	if exactURL != "" {
		for gi, group := range groups {
			for ui, u := range group.URLs {
				if u != exactURL {
					continue
				}
				group.URLs = append(append([]string{}, group.URLs[:ui]...), group.URLs[ui+1:]...)
				out := append([]MaterialGroup{}, groups...)
				if len(group.URLs) == 0 {
					out = append(out[:gi], out[gi+1:]...)
				} else {
					out[gi] = group
				}
				return out, []string{exactURL}, nil
			}
		}
		return nil, nil, fmt.Errorf("%w: %s", ErrFileNotFound, exactURL)
	}
	if title == "" {
		return nil, nil, fmt.Errorf("%w: a group title or exact url is required", ErrInvalidInput)
	}
	for gi, group := range groups {
		if group.Title != title {
			continue
		}
		out := append([]MaterialGroup{}, groups[:gi]...)
		out = append(out, groups[gi+1:]...)
		return out, append([]string{}, group.URLs...), nil
	}
	return nil, nil, fmt.Errorf("%w: group %q", ErrFileNotFound, title)
}

// removePageMedia drops entries matching an exact URL or a page
// number.
func removePageMedia(media []PageMedia, pageNumber *int, exactURL string) ([]PageMedia, []string, error) {
	if exactURL == "" && pageNumber == nil {
		return nil, nil, fmt.Errorf("%w: a page number or exact url is required", ErrInvalidInput)
	}
	var out []PageMedia
	var removed []string
	for _, m := range media {
		match := (exactURL != "" && m.URL == exactURL) ||
			(exactURL == "" && pageNumber != nil && m.PageNumber == *pageNumber)
		if match {
			removed = append(removed, m.URL)
			continue
		}
		out = append(out, m)
	}
	if len(removed) == 0 {
		return nil, nil, fmt.Errorf("%w: no matching page media", ErrFileNotFound)
	}
	return out, removed, nil
}

func removeGlossaryEntry(entries []GlossaryEntry, term string) ([]GlossaryEntry, []string, error) {
	if term == "" {
		return nil, nil, fmt.Errorf("%w: a glossary term is required", ErrInvalidInput)
	}
	for i, e := range entries {
		if e.Term != term {
			continue
		}
		out := append([]GlossaryEntry{}, entries[:i]...)
		out = append(out, entries[i+1:]...)
		var removed []string
		if e.ImageURL != "" {
			removed = []string{e.ImageURL}
		}
		return out, removed, nil
	}
	return nil, nil, fmt.Errorf("%w: glossary term %q", ErrFileNotFound, term)
}

func (s *service) AddMaterials(ctx context.Context, req AddMaterialsRequest) (*Resource, error) {
	if req.Kind != ItemAnswers && req.Kind != ItemMaterials {
		return nil, fmt.Errorf("%w: materials kind must be %q or %q", ErrInvalidInput, ItemAnswers, ItemMaterials)
	}
	if req.Title == "" {
		return nil, fmt.Errorf("%w: group title is required", ErrInvalidInput)
	}
	if len(req.Files) == 0 {
		return nil, fmt.Errorf("%w: at least one file is required", ErrInvalidInput)
	}

	resource, err := s.repository.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	folder := folderAnswers
	if req.Kind == ItemMaterials {
		folder = folderMaterials
	}

	urls := make([]string, len(req.Files))
	var tracker uploadTracker
	g, gctx := errgroup.WithContext(ctx)
	for i := range req.Files {
		g.Go(func() error {
			url, err := s.uploadOne(gctx, &req.Files[i], folder)
			if err != nil {
				return err
			}
			tracker.add(url)
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, err
	}

	groups := resource.Answers
	if req.Kind == ItemMaterials {
		groups = resource.Materials
	}
	merged := false
	for i := range groups {
		if groups[i].Title == req.Title {
			groups[i].URLs = append(groups[i].URLs, urls...)
			merged = true
			break
		}
	}
	if !merged {
		groups = append(groups, MaterialGroup{Title: req.Title, URLs: urls})
	}
	if req.Kind == ItemMaterials {
		resource.Materials = groups
	} else {
		resource.Answers = groups
	}
	resource.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateResource(ctx, resource); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, &ResourceError{ResourceID: resource.ID, Op: "add materials", Err: err}
	}
	return resource, nil
}

func (s *service) SetClassroom(ctx context.Context, req SetClassroomRequest) (*Resource, error) {
	if len(req.Media) != len(req.MediaPages) {
		return nil, fmt.Errorf("%w: %d media files for %d page numbers", ErrInvalidInput, len(req.Media), len(req.MediaPages))
	}
	if req.Document == nil && len(req.Media) == 0 {
		return nil, fmt.Errorf("%w: nothing to upload", ErrInvalidInput)
	}

	resource, err := s.repository.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}
	if resource.Classroom == nil {
		resource.Classroom = &Classroom{}
	}

	var staged []string
	newMedia := make([]PageMedia, len(req.Media))

	var tracker uploadTracker
	g, gctx := errgroup.WithContext(ctx)
	if req.Document != nil {
		old := resource.Classroom.DocumentURL
		g.Go(func() error {
			url, err := s.uploadOne(gctx, req.Document, folderClassroom)
			if err != nil {
				return err
			}
			tracker.add(url)
			resource.Classroom.DocumentURL = url
			return nil
		})
		if old != "" {
			staged = append(staged, old)
		}
	}
	for i := range req.Media {
		g.Go(func() error {
			url, err := s.uploadOne(gctx, &req.Media[i], folderClassroom)
			if err != nil {
				return err
			}
			tracker.add(url)
			newMedia[i] = PageMedia{PageNumber: req.MediaPages[i], URL: url}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, err
	}

	resource.Classroom.Media = append(resource.Classroom.Media, newMedia...)
	resource.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateResource(ctx, resource); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, &ResourceError{ResourceID: resource.ID, Op: "set classroom", Err: err}
	}

	s.discard(ctx, staged)
	return resource, nil
}

func (s *service) AddGlossaryEntries(ctx context.Context, req AddGlossaryRequest) (*Resource, error) {
	if len(req.Entries) == 0 {
		return nil, fmt.Errorf("%w: at least one entry is required", ErrInvalidInput)
	}

	resource, err := s.repository.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	existing := make(map[string]bool, len(resource.Glossary))
	for _, e := range resource.Glossary {
		existing[e.Term] = true
	}
	for _, in := range req.Entries {
		if in.Term == "" {
			return nil, fmt.Errorf("%w: glossary term is required", ErrInvalidInput)
		}
		if existing[in.Term] {
			return nil, fmt.Errorf("%w: duplicate glossary term %q", ErrInvalidInput, in.Term)
		}
		existing[in.Term] = true
	}

	added := make([]GlossaryEntry, len(req.Entries))
	var tracker uploadTracker
	g, gctx := errgroup.WithContext(ctx)
	for i := range req.Entries {
		g.Go(func() error {
			in := &req.Entries[i]
			entry := GlossaryEntry{Term: in.Term, Description: in.Description}
			if in.Image != nil {
				url, err := s.uploadOne(gctx, in.Image, folderGlossary)
				if err != nil {
					return err
				}
				tracker.add(url)
				entry.ImageURL = url
			}
			added[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, err
	}

	resource.Glossary = append(resource.Glossary, added...)
	resource.UpdatedAt = time.Now().UTC()

	if err := s.repository.UpdateResource(ctx, resource); err != nil {
		s.discard(ctx, tracker.urls)
		return nil, &ResourceError{ResourceID: resource.ID, Op: "add glossary", Err: err}
	}
	return resource, nil
}

func (s *service) OpenResourceFile(ctx context.Context, req OpenFileRequest) (*FileDownload, error) {
	resource, err := s.repository.GetResource(ctx, req.ResourceID)
	if err != nil {
		return nil, err
	}

	var url, fileName string
	switch req.Kind {
	case FileBook:
		url = resource.DocumentURL
		fileName = resource.Title + "-Book.pdf"
	case FileAudio:
		url, err = pageMediaURL(resource.PageAudio, req.PageNumber)
		if err != nil {
			return nil, err
		}
		fileName = fmt.Sprintf("%s-Page-%d.mp3", resource.Title, *req.PageNumber)
	case FileVideo:
		url, err = pageMediaURL(resource.PageVideo, req.PageNumber)
		if err != nil {
			return nil, err
		}
		fileName = fmt.Sprintf("%s-Page-%d.mp4", resource.Title, *req.PageNumber)
	case FileClassroomDoc:
		if resource.Classroom != nil {
			url = resource.Classroom.DocumentURL
		}
		fileName = resource.Title + "-Classroom.pdf"
	case FileClassroomMedia:
		if resource.Classroom == nil {
			return nil, fmt.Errorf("%w: no classroom media", ErrFileNotFound)
		}
		url, err = pageMediaURL(resource.Classroom.Media, req.PageNumber)
		if err != nil {
			return nil, err
		}
		fileName = fmt.Sprintf("%s-Classroom-Page-%d%s", resource.Title, *req.PageNumber, path.Ext(url))
	default:
		return nil, fmt.Errorf("%w: unknown file kind %q", ErrInvalidInput, req.Kind)
	}
	if url == "" {
		return nil, fmt.Errorf("%w: resource has no %s file", ErrFileNotFound, req.Kind)
	}

	key, ok := s.blobStore.ObjectKey(url)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, url)
	}
	body, err := s.blobStore.Download(ctx, key)
	if err != nil {
		return nil, s.storageError("download", key, err)
	}

	contentType := mime.TypeByExtension(path.Ext(fileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &FileDownload{Body: body, ContentType: contentType, FileName: fileName}, nil
}

func pageMediaURL(media []PageMedia, pageNumber *int) (string, error) {
	if pageNumber == nil {
		return "", fmt.Errorf("%w: page number is required", ErrInvalidInput)
	}
	for _, m := range media {
		if m.PageNumber == *pageNumber {
			return m.URL, nil
		}
	}
	return "", fmt.Errorf("%w: no media for page %d", ErrFileNotFound, *pageNumber)
}

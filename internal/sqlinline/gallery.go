package sqlinline

const galleryColumns = `
    id::text,
    coalesce(title_fr, ''),
    coalesce(title_en, ''),
    coalesce(description_fr, ''),
    coalesce(description_en, ''),
    coalesce(image_url, ''),
    coalesce(video_url, ''),
    coalesce(static_image_url, ''),
    position,
    coalesce(sort_order, 0),
    coalesce(published, false),
    coalesce(updated_at, now())`

const QListPublishedGalleryItems = `--sql 44264ef0-4ff3-4f79-a538-47391a6dd6a1
select` + galleryColumns + `
from gallery_items
where published
order by sort_order asc, updated_at desc
limit $1::int offset $2::int;
`

const QListPositionedGalleryItems = `--sql 27bdc205-f367-422b-903b-e39db25654b5
select` + galleryColumns + `
from gallery_items
where position is not null
  and coalesce(image_url, '') <> ''
order by sort_order asc, id asc
limit $1::int offset $2::int;
`

const QGetGalleryItem = `--sql 9b0d7ded-b288-4eb5-8c84-f7fe5e12e498
select` + galleryColumns + `
from gallery_items
where id::text = $1::text
limit 1;
`

const QSaveGalleryStaticImage = `--sql c7a6230d-9bae-402a-9da7-a0d2a20fb704
update gallery_items
set position = $2::jsonb,
    static_image_url = $3::text,
    updated_at = now()
where id::text = $1::text;
`

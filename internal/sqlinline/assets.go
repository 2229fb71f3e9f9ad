package sqlinline

// QInsertGenerationAsset inserts at most one asset per job; a conflicting
// insert returns no row and the caller reads the existing one.
const QInsertGenerationAsset = `--sql 2937bd42-c55c-4480-b80b-53b02382d209
insert into assets(
  id,
  owner_id,
  type,
  storage_ref,
  thumbnail_ref,
  metadata,
  source_type,
  source_generation_id,
  created_at
) values (
  gen_random_uuid(),
  $1::text,
  $2::text,
  $3::text,
  nullif($4::text, ''),
  $5::jsonb,
  'generation',
  $6::uuid,
  now()
)
on conflict (source_generation_id) do nothing
returning id::text, owner_id, type, storage_ref, coalesce(thumbnail_ref, ''), metadata, source_type, coalesce(source_generation_id::text, ''), created_at;
`

const QSelectAssetByID = `--sql 0a169597-62c6-4207-907f-ed6e6560ac69
select id::text, owner_id, type, storage_ref, coalesce(thumbnail_ref, ''), metadata, source_type, coalesce(source_generation_id::text, ''), created_at
from assets
where id = $1::uuid
limit 1;
`

const QSelectAssetBySourceGeneration = `--sql 7b9a961d-380e-43e8-b377-257b663653ea
select id::text, owner_id, type, storage_ref, coalesce(thumbnail_ref, ''), metadata, source_type, coalesce(source_generation_id::text, ''), created_at
from assets
where source_generation_id = $1::uuid
limit 1;
`

const QListUnlinkedAssets = `--sql 0235c0fa-3cbe-445a-9859-ebe08470f838
select a.id::text, a.owner_id, a.type, a.storage_ref, coalesce(a.thumbnail_ref, ''), a.metadata, a.source_type, coalesce(a.source_generation_id::text, ''), a.created_at
from assets a
join generation_jobs j on j.id = a.source_generation_id
where j.output_asset_id is null
order by a.created_at asc
limit $1::int;
`

// QDeleteUnlinkedAsset removes an asset only while no job points at it.
const QDeleteUnlinkedAsset = `--sql 01e37024-461a-4f38-ab14-3748ad75aea7
delete from assets a
where a.id = $1::uuid
  and not exists (select 1 from generation_jobs j where j.output_asset_id = a.id);
`

package sqlinline

const QInsertGenerationJob = `--sql 80812cea-7818-4dfb-ba52-ba8f6d79f862
insert into generation_jobs(
  id,
  owner_id,
  model_id,
  generation_type,
  project_id,
  request,
  status,
  provider_job_id,
  progress,
  created_at,
  updated_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  nullif($5::text, ''),
  $6::jsonb,
  $7::text,
  nullif($8::text, ''),
  $9::jsonb,
  $10::timestamptz,
  $11::timestamptz
);
`

const QUpdateGenerationJob = `--sql f60d6bb5-e768-4d6a-ba85-25883a33e486
update generation_jobs
set status = $2::text,
    provider_job_id = nullif($3::text, ''),
    progress = $4::jsonb,
    output_asset_id = nullif($5::text, '')::uuid,
    error_kind = nullif($6::text, ''),
    error_message = nullif($7::text, ''),
    updated_at = $8::timestamptz,
    completed_at = $9::timestamptz
where id = $1::uuid;
`

const QSelectGenerationJobByID = `--sql 04ca888b-796a-4e1f-b742-883372c6738e
select
  id::text,
  request,
  status,
  coalesce(provider_job_id, ''),
  progress,
  coalesce(output_asset_id::text, ''),
  coalesce(error_kind, ''),
  coalesce(error_message, ''),
  created_at,
  updated_at,
  completed_at
from generation_jobs
where id = $1::uuid
limit 1;
`

const QListGenerationJobsByStatus = `--sql e1d01c88-88fd-44a5-9995-a41f21c17480
select
  id::text,
  request,
  status,
  coalesce(provider_job_id, ''),
  progress,
  coalesce(output_asset_id::text, ''),
  coalesce(error_kind, ''),
  coalesce(error_message, ''),
  created_at,
  updated_at,
  completed_at
from generation_jobs
where status = $1::text
order by created_at asc
limit $2::int;
`
